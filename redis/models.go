package redis

import (
	"encoding/json"
	"time"

	"github.com/DanilaP/social-network-backend/api"
)

// A message represents a cached dialog message. The attachment list is
// stored as a JSON string because Redis hashes hold flat fields only.
type message struct {
	ID        string    `redis:"id"`
	DialogID  string    `redis:"dialog_id"`
	SenderID  string    `redis:"sender_id"`
	Text      string    `redis:"text"`
	Files     string    `redis:"files"`
	CreatedAt time.Time `redis:"created_at"`
}

func newMessage(m api.Message) (*message, error) {
	files, err := json.Marshal(m.Files)
	if err != nil {
		return nil, err
	}
	return &message{
		ID:        m.ID,
		DialogID:  m.DialogID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Files:     string(files),
		CreatedAt: m.CreatedAt,
	}, nil
}

func (m message) APIMessage() (api.Message, error) {
	files := []api.File{}
	if m.Files != "" {
		if err := json.Unmarshal([]byte(m.Files), &files); err != nil {
			return api.Message{}, err
		}
	}
	return api.Message{
		ID:        m.ID,
		DialogID:  m.DialogID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Files:     files,
		CreatedAt: m.CreatedAt,
	}, nil
}
