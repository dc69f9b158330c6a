package domain

import "time"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AuditRecord describes one tool invocation. It is built once and posted as
// is; nothing in this system edits a record after creation.
type AuditRecord struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Identity  string         `json:"identity"`
	At        time.Time      `json:"at"`
	Outcome   Outcome        `json:"outcome"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
}

// Identity is the authenticated session as reported by auth.test.
type Identity struct {
	UserID string `json:"user_id"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	Team   string `json:"team"`
	URL    string `json:"url"`
}

// Label renders the identity for audit lines.
func (i Identity) Label() string {
	switch {
	case i.User != "" && i.UserID != "":
		return i.User + " (" + i.UserID + ")"
	case i.UserID != "":
		return i.UserID
	default:
		return "unknown"
	}
}
