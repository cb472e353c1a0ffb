package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRoomRepository keeps rooms in process memory.
// Rooms are lost on restart.
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[string]Room),
	}
}

func (r *MemoryRoomRepository) Save(ctx context.Context, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ChannelID] = room
	return nil
}

func (r *MemoryRoomRepository) SetControlMessage(ctx context.Context, channelID, messageID string) error {
	return r.modify(channelID, func(room *Room) { room.ControlMessageID = messageID })
}

func (r *MemoryRoomRepository) Rename(ctx context.Context, channelID, name string) error {
	return r.modify(channelID, func(room *Room) { room.Name = name })
}

func (r *MemoryRoomRepository) modify(channelID string, fn func(*Room)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channelID]
	if !ok {
		return fmt.Errorf("room %s: %w", channelID, ErrRoomNotFound)
	}
	fn(&room)
	r.rooms[channelID] = room
	return nil
}

func (r *MemoryRoomRepository) Delete(ctx context.Context, channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[channelID]
	delete(r.rooms, channelID)
	return ok, nil
}

func (r *MemoryRoomRepository) Get(ctx context.Context, channelID string) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[channelID]
	if !ok {
		return Room{}, fmt.Errorf("room %s: %w", channelID, ErrRoomNotFound)
	}
	return room, nil
}

func (r *MemoryRoomRepository) List(ctx context.Context, guildID string) ([]Room, error) {
	r.mu.RLock()
	rooms := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		if guildID == "" || room.GuildID == guildID {
			rooms = append(rooms, room)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ChannelID < rooms[j].ChannelID
	})
	return rooms, nil
}

var _ RoomRepository = (*MemoryRoomRepository)(nil)
