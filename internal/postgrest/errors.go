package postgrest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/roach88/fieldsync/internal/remote"
)

// apiError is the JSON error body PostgREST returns.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

var authCodes = map[string]bool{
	"PGRST301": true, // JWT could not be decoded or has expired
	"PGRST302": true, // anonymous access disabled
	"PGRST303": true, // JWT claims validation failed
}

var conflictCodes = map[string]bool{
	"23505": true, // unique_violation
	"23503": true, // foreign_key_violation
}

// kindFor maps a response status and backend code onto a remote.Kind.
// Authentication is checked before conflict.
func kindFor(status int, code string) remote.Kind {
	switch {
	case authCodes[code] || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return remote.KindAuth
	case conflictCodes[code] || status == http.StatusConflict:
		return remote.KindConflict
	case status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return remote.KindTransient
	}
	return remote.KindOther
}

// decodeError builds a *remote.Error from a non-2xx response body.
func decodeError(status int, body []byte) *remote.Error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Message == "" {
		ae.Message = strings.TrimSpace(string(body))
		if ae.Message == "" {
			ae.Message = http.StatusText(status)
		}
	}
	msg := ae.Message
	if ae.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, ae.Details)
	}
	return &remote.Error{
		Kind:    kindFor(status, ae.Code),
		Status:  status,
		Code:    ae.Code,
		Message: msg,
	}
}
