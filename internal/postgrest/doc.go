// Package postgrest implements remote.Store against a Supabase PostgREST
// endpoint (/rest/v1/<table>).
//
// Every failure is returned as a *remote.Error whose Kind is derived from the
// HTTP status and the PostgREST/PostgreSQL error code:
//
//	401, 403, PGRST301, PGRST302, PGRST303, expired token -> KindAuth
//	409, 23505 (unique), 23503 (foreign key)              -> KindConflict
//	5xx, 408, 429, network failure                        -> KindTransient
//	anything else                                         -> KindOther
//
// The access token is checked for expiry locally before each request so that
// an expired session fails fast with KindAuth instead of costing a round trip.
package postgrest
