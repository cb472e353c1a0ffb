package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/events"
)

type LimitChange struct {
	Limit int       `json:"limit"`
	By    string    `json:"by,omitempty"`
	At    time.Time `json:"at"`
}

type PrivacyChange struct {
	Private bool      `json:"private"`
	By      string    `json:"by,omitempty"`
	At      time.Time `json:"at"`
}

// Session is the archived history of one room, from creation to deletion.
type Session struct {
	ChannelID      string          `json:"channelId"`
	GuildID        string          `json:"guildId"`
	CreatorID      string          `json:"creatorId,omitempty"`
	DeletedBy      string          `json:"deletedBy,omitempty"`
	Names          []string        `json:"names"`
	CreatedAt      time.Time       `json:"createdAt,omitzero"`
	DeletedAt      time.Time       `json:"deletedAt"`
	Limits         []LimitChange   `json:"limits,omitempty"`
	PrivacyChanges []PrivacyChange `json:"privacyChanges,omitempty"`
}

// SessionKey is where a room's session is stored.
func SessionKey(guildID, channelID string) string {
	return path.Join("sessions", guildID, channelID+".json")
}

// eventKey identifies a delivery so redelivered events apply once.
type eventKey struct {
	typ    events.Type
	userID string
	name   string
	limit  int
	at     int64
}

func keyOf(e events.Event) eventKey {
	return eventKey{typ: e.Type, userID: e.UserID, name: e.Name, limit: e.Limit, at: e.At.UnixNano()}
}

type openSession struct {
	Session
	seen map[eventKey]struct{}
}

// Archiver folds room events into sessions and stores each session once
// its room is deleted. Sessions whose creation was not seen are archived
// with whatever was observed.
type Archiver struct {
	storage datalayer.BlobStorage

	mu       sync.Mutex
	sessions map[string]*openSession
}

func NewArchiver(storage datalayer.BlobStorage) *Archiver {
	return &Archiver{
		storage:  storage,
		sessions: make(map[string]*openSession),
	}
}

func (a *Archiver) apply(e events.Event) *openSession {
	s, ok := a.sessions[e.ChannelID]
	if !ok {
		s = &openSession{
			Session: Session{ChannelID: e.ChannelID, GuildID: e.GuildID, Names: []string{}},
			seen:    make(map[eventKey]struct{}),
		}
		a.sessions[e.ChannelID] = s
	}

	key := keyOf(e)
	if _, dup := s.seen[key]; dup {
		return s
	}
	s.seen[key] = struct{}{}

	if s.GuildID == "" {
		s.GuildID = e.GuildID
	}
	addName := func(name string) {
		if name != "" && (len(s.Names) == 0 || s.Names[len(s.Names)-1] != name) {
			s.Names = append(s.Names, name)
		}
	}

	switch e.Type {
	case events.RoomCreated:
		s.CreatorID = e.UserID
		s.CreatedAt = e.At
		// Renames may have been delivered first.
		s.Names = append([]string{e.Name}, s.Names...)
	case events.RoomRenamed:
		addName(e.Name)
	case events.RoomLimit:
		s.Limits = append(s.Limits, LimitChange{Limit: e.Limit, By: e.UserID, At: e.At})
	case events.RoomPrivate, events.RoomPublic:
		s.PrivacyChanges = append(s.PrivacyChanges, PrivacyChange{Private: e.Type == events.RoomPrivate, By: e.UserID, At: e.At})
	case events.RoomDeleted:
		addName(e.Name)
		s.DeletedAt = e.At
		s.DeletedBy = e.UserID
	}
	return s
}

// HandleEvents implements events.Handler.
func (a *Archiver) HandleEvents(ctx context.Context, batch ...events.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var finished []*openSession
	for _, e := range batch {
		s := a.apply(e)
		if e.Type == events.RoomDeleted {
			finished = append(finished, s)
		}
	}

	for _, s := range finished {
		if _, open := a.sessions[s.ChannelID]; !open {
			continue
		}
		if s.CreatedAt.IsZero() {
			// Possibly a redelivered deletion of a room archived earlier.
			archived, err := a.exists(ctx, SessionKey(s.GuildID, s.ChannelID))
			if err != nil {
				return err
			}
			if archived {
				delete(a.sessions, s.ChannelID)
				continue
			}
		}
		if err := a.store(ctx, s.Session); err != nil {
			return err
		}
		delete(a.sessions, s.ChannelID)
		slog.Info("archived room session", "channelID", s.ChannelID, "guildID", s.GuildID, "names", len(s.Names))
	}
	return nil
}

func (a *Archiver) store(ctx context.Context, s Session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ChannelID, err)
	}
	key := SessionKey(s.GuildID, s.ChannelID)
	err = a.storage.Put(ctx, key, bytes.NewReader(body), datalayer.PutOptions{
		Size:        int64(len(body)),
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) exists(ctx context.Context, key string) (bool, error) {
	rc, err := a.storage.Get(ctx, key)
	if errors.Is(err, datalayer.ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session %s: %w", key, err)
	}
	return true, rc.Close()
}

// Open reports how many rooms have events but no deletion yet.
func (a *Archiver) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// LoadSession reads an archived session back.
func LoadSession(ctx context.Context, storage datalayer.BlobStorage, guildID, channelID string) (Session, error) {
	rc, err := storage.Get(ctx, SessionKey(guildID, channelID))
	if err != nil {
		return Session{}, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}

var _ events.Handler = (*Archiver)(nil)

// LogHandler only logs events. It stands in for the archiver in dry runs.
var LogHandler = events.HandlerFunc(func(ctx context.Context, batch ...events.Event) error {
	for _, e := range batch {
		slog.InfoContext(ctx, "Handling room event", e.LogAttrs()...)
	}
	return nil
})
