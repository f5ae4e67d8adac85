package note

import "encoding/json"

// CollectionName is the collection the /notes and /sync routes serve.
const CollectionName = "notes"

// ChatMessage is one turn of the conversation embedded in a note.
type ChatMessage struct {
	ID        string `json:"id" validate:"required"`
	Role      string `json:"role" validate:"required"` // user/assistant
	Content   string `json:"content"`
	Timestamp string `json:"timestamp" validate:"required"`
}

// Note is the unit of sync. DateKey identifies it, UpdatedAt orders writes.
type Note struct {
	DateKey             string        `json:"dateKey" validate:"required"`
	Content             string        `json:"content"`
	UpdatedAt           string        `json:"updatedAt" validate:"required"`
	ChatMessages        []ChatMessage `json:"chatMessages" validate:"dive"`
	ConversationStarted bool          `json:"conversationStarted"`
}

// MarshalJSON keeps chatMessages an array on the wire even when unset.
func (n Note) MarshalJSON() ([]byte, error) {
	type plain Note
	p := plain(n)
	if p.ChatMessages == nil {
		p.ChatMessages = []ChatMessage{}
	}
	return json.Marshal(p)
}

// SyncRequest accepts the batch under "notes" or, for clients of the
// generic collection API, under "items".
type SyncRequest struct {
	Notes        []Note  `json:"notes"`
	Items        []Note  `json:"items,omitempty"`
	LastSyncTime *string `json:"lastSyncTime"`
}

func (r SyncRequest) incoming() []Note {
	if len(r.Notes) == 0 && len(r.Items) > 0 {
		return r.Items
	}
	return r.Notes
}

// SyncResponse repeats the notes under "items" so both kinds of client can
// read it.
type SyncResponse struct {
	Notes      []Note `json:"notes"`
	Items      []Note `json:"items"`
	ServerTime string `json:"serverTime"`
}

// SyncResult is what the service hands back to the transport. Accepted and
// Rejected count incoming notes and are never serialized.
type SyncResult struct {
	SyncResponse
	Accepted int
	Rejected int
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}
