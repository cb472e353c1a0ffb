// Package events carries room lifecycle events from the bot to the archive worker.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type Type string

const (
	RoomCreated Type = "room.created"
	RoomDeleted Type = "room.deleted"
	RoomRenamed Type = "room.renamed"
	RoomLimit   Type = "room.limit"
	RoomPrivate Type = "room.private"
	RoomPublic  Type = "room.public"
)

func (t Type) Valid() bool {
	switch t {
	case RoomCreated, RoomDeleted, RoomRenamed, RoomLimit, RoomPrivate, RoomPublic:
		return true
	}
	return false
}

// Event describes one change to a room.
// UserID is the member who caused the change.
type Event struct {
	Type      Type
	ChannelID string
	GuildID   string
	UserID    string
	Name      string
	Limit     int
	At        time.Time
}

// Values flattens the event into stream fields.
func (e Event) Values() map[string]any {
	return map[string]any{
		"type":      string(e.Type),
		"channelID": e.ChannelID,
		"guildID":   e.GuildID,
		"userID":    e.UserID,
		"name":      e.Name,
		"limit":     strconv.Itoa(e.Limit),
		"at":        e.At.UTC().Format(time.RFC3339Nano),
	}
}

// EventFromValues is the inverse of Event.Values.
func EventFromValues(values map[string]any) (Event, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	e := Event{
		Type:      Type(str("type")),
		ChannelID: str("channelID"),
		GuildID:   str("guildID"),
		UserID:    str("userID"),
		Name:      str("name"),
	}
	if !e.Type.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ChannelID == "" {
		return Event{}, fmt.Errorf("event %s has no channel", e.Type)
	}

	if raw := str("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Event{}, fmt.Errorf("invalid limit %q: %w", raw, err)
		}
		e.Limit = limit
	}

	at, err := time.Parse(time.RFC3339Nano, str("at"))
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp %q: %w", str("at"), err)
	}
	e.At = at
	return e, nil
}

func (e Event) LogAttrs() []any {
	return []any{
		slog.String("type", string(e.Type)),
		slog.String("channelID", e.ChannelID),
		slog.String("guildID", e.GuildID),
		slog.String("userID", e.UserID),
	}
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// LogPublisher writes events to the default logger only.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		slog.InfoContext(ctx, "room event", e.LogAttrs()...)
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of each recorded event in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

var (
	_ Publisher = LogPublisher{}
	_ Publisher = (*Recorder)(nil)
)
