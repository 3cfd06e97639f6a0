package engine

import (
	"strings"

	"github.com/roach88/fieldsync/internal/record"
)

// IDMapping maps client-generated record ids to server-assigned ids for the
// duration of one DrainQueue call. It is created at the start of a pass,
// passed by reference through it, and dropped at the end. It is never
// persisted and never shared between passes.
type IDMapping struct {
	ids    map[string]string
	synced []string
	marked map[string]bool
}

// NewIDMapping returns an empty mapping.
func NewIDMapping() *IDMapping {
	return &IDMapping{ids: map[string]string{}, marked: map[string]bool{}}
}

// Record notes that clientID was created remotely as serverID. Later entries
// in the pass resolve clientID to serverID from here on. Record does not make
// clientID visible to Synced; MarkSynced does, once the local queue agrees.
func (m *IDMapping) Record(clientID, serverID string) {
	m.ids[clientID] = serverID
}

// Has reports whether clientID has a recorded server id.
func (m *IDMapping) Has(clientID string) bool {
	_, ok := m.ids[clientID]
	return ok
}

// MarkSynced reports clientID through Synced. Ids without a recorded server
// id, and ids already marked, are ignored.
func (m *IDMapping) MarkSynced(clientID string) {
	if !m.Has(clientID) || m.marked[clientID] {
		return
	}
	m.marked[clientID] = true
	m.synced = append(m.synced, clientID)
}

// Resolve returns the server id for id if one was recorded, else id.
func (m *IDMapping) Resolve(id string) string {
	if server, ok := m.ids[id]; ok {
		return server
	}
	return id
}

// Rewrite returns a copy of p with every string-valued "*_id" field replaced
// by its server id when a mapping exists. The "id" field itself is left alone.
func (m *IDMapping) Rewrite(p record.Payload) record.Payload {
	out := p.Clone()
	if len(m.ids) == 0 {
		return out
	}
	for k, v := range out {
		if !strings.HasSuffix(k, "_id") {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = m.Resolve(s)
		}
	}
	return out
}

// Synced returns the client ids marked synced during the pass, in order.
// The result is never nil.
func (m *IDMapping) Synced() []string {
	out := make([]string, len(m.synced))
	copy(out, m.synced)
	return out
}

// Len returns the number of recorded mappings.
func (m *IDMapping) Len() int {
	return len(m.ids)
}
