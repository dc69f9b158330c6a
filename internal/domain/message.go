package domain

// Message is a single Slack message as returned to tool callers.
// ID and Timestamp are both the upstream "ts"; ID is kept separate because
// callers address messages by it while Timestamp drives ordering.
type Message struct {
	ID           string `json:"id" csv:"id"`
	ChannelID    string `json:"channel_id" csv:"channel_id"`
	ChannelName  string `json:"channel_name,omitempty" csv:"channel_name"`
	AuthorID     string `json:"author_id,omitempty" csv:"author_id"`
	AuthorName   string `json:"author_name,omitempty" csv:"author_name"`
	Timestamp    string `json:"ts" csv:"ts"`
	Time         string `json:"time,omitempty" csv:"time"`
	Text         string `json:"text" csv:"text"`
	ThreadRootID string `json:"thread_root_id,omitempty" csv:"thread_root_id"`
	ReplyCount   int    `json:"reply_count,omitempty" csv:"reply_count"`
	Permalink    string `json:"permalink,omitempty" csv:"permalink"`
}

// IsReply reports whether m belongs to a thread rooted at another message.
func (m Message) IsReply() bool {
	return m.ThreadRootID != "" && m.ThreadRootID != m.Timestamp
}

// ThreadReplyChain is a reconstructed thread. Root has no ThreadRootID;
// Replies are strictly ascending by timestamp and all point at Root.
type ThreadReplyChain struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	ThreadTS    string    `json:"thread_ts"`
	Root        Message   `json:"root"`
	Replies     []Message `json:"replies"`
	MatchCount  int       `json:"match_count,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// Len counts the root plus its replies.
func (c ThreadReplyChain) Len() int { return 1 + len(c.Replies) }

// SearchResult is an ordered page of search matches. An empty NextCursor
// means the result set is exhausted.
type SearchResult struct {
	Query      string    `json:"query"`
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// History is a page of a channel's timeline, newest first.
type History struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	Messages    []Message `json:"messages"`
	NextCursor  string    `json:"next_cursor,omitempty"`
}

// File is a file search match.
type File struct {
	ID        string   `json:"id" csv:"id"`
	Name      string   `json:"name" csv:"name"`
	Title     string   `json:"title,omitempty" csv:"title"`
	FileType  string   `json:"filetype,omitempty" csv:"filetype"`
	AuthorID  string   `json:"author_id,omitempty" csv:"author_id"`
	Created   string   `json:"created,omitempty" csv:"created"`
	Permalink string   `json:"permalink,omitempty" csv:"permalink"`
	Channels  []string `json:"channels,omitempty" csv:"-"`
}

type FileSearchResult struct {
	Query      string `json:"query"`
	Files      []File `json:"files"`
	Total      int    `json:"total"`
	NextCursor string `json:"next_cursor,omitempty"`
}
