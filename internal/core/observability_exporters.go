package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// JSONAuditRecorder writes audit entries as JSON lines and retains them for
// inspection.
type JSONAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	enc     *json.Encoder
}

// NewJSONAuditRecorder constructs a recorder writing to w. A nil writer only
// retains entries.
func NewJSONAuditRecorder(w io.Writer) *JSONAuditRecorder {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONAuditRecorder{enc: enc}
}

// Record implements AuditRecorder.
func (r *JSONAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	entry.Warnings = append([]string(nil), entry.Warnings...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if r.enc != nil {
		_ = r.enc.Encode(entry)
	}
}

// Entries returns a copy of the recorded entries.
func (r *JSONAuditRecorder) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
