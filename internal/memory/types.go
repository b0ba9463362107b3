package memory

import (
	"context"
	"time"
)

// Entry is one remembered item: a user/assistant exchange captured
// after a turn, or a note the user saved explicitly. Exactly one of
// the two forms is populated.
type Entry struct {
	ID        string
	UserMsg   string
	AssistMsg string
	Note      string
	Timestamp time.Time
	SessionID string
}

// Content renders the entry as the text that gets embedded and matched.
func (e *Entry) Content() string {
	if e.Note != "" {
		return "Note: " + e.Note
	}
	return "User: " + e.UserMsg + "\nAssistant: " + e.AssistMsg
}

// metadata flattens the entry for storage alongside its vector.
func (e *Entry) metadata() map[string]string {
	return map[string]string{
		"user_msg":   e.UserMsg,
		"assist_msg": e.AssistMsg,
		"note":       e.Note,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
		"session_id": e.SessionID,
	}
}

// entryFromMetadata is the inverse of metadata, for hits whose entry is
// no longer in the in-process index.
func entryFromMetadata(id string, md map[string]string) Entry {
	ts, _ := time.Parse(time.RFC3339, md["timestamp"])
	return Entry{
		ID:        id,
		UserMsg:   md["user_msg"],
		AssistMsg: md["assist_msg"],
		Note:      md["note"],
		Timestamp: ts,
		SessionID: md["session_id"],
	}
}

// SearchResult pairs an entry with its retrieval scores.
type SearchResult struct {
	Entry         Entry
	SemanticScore float32
	KeywordScore  float32
	CombinedScore float32
}

// Store persists memories and retrieves them by hybrid search.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	AddNote(ctx context.Context, text, sessionID string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Count() int
	Close() error
}
