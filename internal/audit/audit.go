package audit

import (
	"encoding/json"
	"time"
)

// Entry is one immutable audit record. Rows are inserted once after the
// primary response is finalized and never updated or deleted.
type Entry struct {
	ID         string          `json:"id"`
	CompanyID  string          `json:"company_id"`
	UserID     string          `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RequestInfo is the finalized view of one request handed to the recorder by
// the pipeline once the response has been written.
type RequestInfo struct {
	UserID    string
	CompanyID string

	Method       string
	Path         string
	StatusCode   int
	RequestBody  []byte
	ResponseBody []byte
	IPAddress    string
	UserAgent    string
	Duration     time.Duration
	At           time.Time
}
