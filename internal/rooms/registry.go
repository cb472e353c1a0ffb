package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/glizzus/voice-rooms/internal/repository"
)

// Registry is the set of rooms the bot currently manages. Lookups are
// served from memory; changes are written through to the repository.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]repository.Room

	store repository.RoomPersister
}

func NewRegistry(store repository.RoomPersister) *Registry {
	return &Registry{
		rooms: make(map[string]repository.Room),
		store: store,
	}
}

// Load replaces the in-memory set with every room in finder.
func (r *Registry) Load(ctx context.Context, finder repository.RoomFinder) (int, error) {
	rooms, err := finder.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to load rooms: %w", err)
	}

	loaded := make(map[string]repository.Room, len(rooms))
	for _, room := range rooms {
		loaded[room.ChannelID] = room
	}

	r.mu.Lock()
	r.rooms = loaded
	r.mu.Unlock()
	return len(loaded), nil
}

// Track starts managing room. The room is tracked in memory even when
// persisting it fails; the error is still returned.
func (r *Registry) Track(ctx context.Context, room repository.Room) error {
	r.mu.Lock()
	r.rooms[room.ChannelID] = room
	r.mu.Unlock()

	if err := r.store.Save(ctx, room); err != nil {
		return fmt.Errorf("failed to persist room %s: %w", room.ChannelID, err)
	}
	return nil
}

// Untrack stops managing a room. Only the first call for a room reports true.
func (r *Registry) Untrack(ctx context.Context, channelID string) (repository.Room, bool) {
	r.mu.Lock()
	room, ok := r.rooms[channelID]
	delete(r.rooms, channelID)
	r.mu.Unlock()

	if !ok {
		return repository.Room{}, false
	}
	if _, err := r.store.Delete(ctx, channelID); err != nil {
		slog.Warn("failed to delete persisted room", "channelID", channelID, "error", err)
	}
	return room, true
}

func (r *Registry) Get(channelID string) (repository.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[channelID]
	return room, ok
}

func (r *Registry) IsTracked(channelID string) bool {
	_, ok := r.Get(channelID)
	return ok
}

func (r *Registry) SetControlMessage(ctx context.Context, channelID, messageID string) error {
	if !r.modify(channelID, func(room *repository.Room) { room.ControlMessageID = messageID }) {
		return ErrNotTracked
	}
	return r.store.SetControlMessage(ctx, channelID, messageID)
}

func (r *Registry) Rename(ctx context.Context, channelID, name string) error {
	if !r.modify(channelID, func(room *repository.Room) { room.Name = name }) {
		return ErrNotTracked
	}
	return r.store.Rename(ctx, channelID, name)
}

func (r *Registry) modify(channelID string, fn func(*repository.Room)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channelID]
	if !ok {
		return false
	}
	fn(&room)
	r.rooms[channelID] = room
	return true
}

// Rooms returns a snapshot ordered by creation time.
func (r *Registry) Rooms() []repository.Room {
	r.mu.RLock()
	rooms := make([]repository.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ChannelID < rooms[j].ChannelID
	})
	return rooms
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
