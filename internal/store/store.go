// Package store implements a SQLite store for local chat transcripts.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ogchat/ogchat/internal/types"
)

// Chat holds a locally persisted chat session.
type Chat struct {
	// ID of this chat.
	ID string
	// Title given to the chat, used when backing up.
	Title string
	// Time at which the chat was created.
	CreationTimestamp int64
	// Time at which the chat was updated.
	UpdateTimestamp int64
	// The transcript of this chat.
	Transcript types.Transcript
}

// Store implements a SQLite store for chats.
type Store struct {
	db *sql.DB
}

// New store rooted in the given directory.
func New(directory string) (*Store, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrap(err, "creating chat directory")
	}
	db, err := sql.Open("sqlite", filepath.Join(directory, "chats.db"))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			creation_timestamp INTEGER NOT NULL,
			update_timestamp INTEGER NOT NULL,
			transcript TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "creating chats table")
	}

	return &Store{db: db}, nil
}

// NewChat instantiates a new chat. It is not persisted until written.
func NewChat(id string) *Chat {
	now := time.Now().UnixMicro()
	return &Chat{
		ID:                id,
		CreationTimestamp: now,
		UpdateTimestamp:   now,
	}
}

// Write a chat to the store.
func (s *Store) Write(chat *Chat) error {
	chat.UpdateTimestamp = time.Now().UnixMicro()

	transcript, err := json.Marshal(chat.Transcript)
	if err != nil {
		return errors.Wrap(err, "marshaling transcript")
	}

	// REPLACE INTO handles both insert and update.
	_, err = s.db.Exec(`
		REPLACE INTO chats (id, title, creation_timestamp, update_timestamp, transcript)
		VALUES (?, ?, ?, ?, ?)
	`, chat.ID, chat.Title, chat.CreationTimestamp, chat.UpdateTimestamp, string(transcript))
	if err != nil {
		return errors.Wrap(err, "writing chat to database")
	}
	return nil
}

// Get a chat.
func (s *Store) Get(chatID string) (*Chat, error) {
	chat := &Chat{}
	var transcriptJSON string

	err := s.db.QueryRow(`
		SELECT id, title, creation_timestamp, update_timestamp, transcript
		FROM chats
		WHERE id = ?
	`, chatID).Scan(&chat.ID, &chat.Title, &chat.CreationTimestamp, &chat.UpdateTimestamp, &transcriptJSON)
	if err == sql.ErrNoRows {
		return nil, errors.New("chat does not exist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying chat")
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &chat.Transcript); err != nil {
		return nil, errors.Wrap(err, "unmarshaling transcript")
	}
	return chat, nil
}

// List the most recently updated chats.
func (s *Store) List(pageSize int) ([]*Chat, error) {
	rows, err := s.db.Query(`
		SELECT id, title, creation_timestamp, update_timestamp, transcript
		FROM chats
		ORDER BY update_timestamp DESC
		LIMIT ?
	`, pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "querying chats")
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat := &Chat{}
		var transcriptJSON string
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.CreationTimestamp, &chat.UpdateTimestamp, &transcriptJSON); err != nil {
			return nil, errors.Wrap(err, "scanning chat row")
		}
		if err := json.Unmarshal([]byte(transcriptJSON), &chat.Transcript); err != nil {
			return nil, errors.Wrap(err, "unmarshaling transcript")
		}
		chats = append(chats, chat)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating chat rows")
	}
	return chats, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
