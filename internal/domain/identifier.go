package domain

// Identifier is something a caller names: a channel, a user, or a message.
// At least one of the human-readable form or the opaque ID is present.
type Identifier interface {
	Kind() string
	Valid() bool
}

type ChannelRef struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id"`
}

func (ChannelRef) Kind() string  { return "channel" }
func (c ChannelRef) Valid() bool { return c.Name != "" || c.ID != "" }

// Label is the most readable form available, "#name" or the ID.
func (c ChannelRef) Label() string {
	if c.Name != "" {
		return "#" + c.Name
	}
	return c.ID
}

type UserRef struct {
	Handle string `json:"handle,omitempty"`
	ID     string `json:"id"`
}

func (UserRef) Kind() string  { return "user" }
func (u UserRef) Valid() bool { return u.Handle != "" || u.ID != "" }

// Mention renders the ID-based search/mention form.
func (u UserRef) Mention() string { return "<@" + u.ID + ">" }

// MessageRef addresses one message, optionally inside a thread.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	TS        string `json:"ts"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	Link      string `json:"link,omitempty"`
}

func (MessageRef) Kind() string  { return "message" }
func (m MessageRef) Valid() bool { return m.Link != "" || (m.ChannelID != "" && m.TS != "") }

// InThread reports whether the reference names a thread root.
func (m MessageRef) InThread() bool { return m.ThreadTS != "" }
