package repository

import (
	"context"
	"errors"
	"time"
)

// ErrRoomNotFound is returned when a room is not tracked.
var ErrRoomNotFound = errors.New("room not found")

// Room is a temporary voice channel created for a member.
type Room struct {
	ChannelID        string
	GuildID          string
	CreatorID        string
	Name             string
	ControlMessageID string
	CreatedAt        time.Time
}

type RoomPersister interface {
	Save(ctx context.Context, room Room) error
	SetControlMessage(ctx context.Context, channelID, messageID string) error
	Rename(ctx context.Context, channelID, name string) error
	// Delete reports whether a room was removed.
	Delete(ctx context.Context, channelID string) (bool, error)
}

type RoomFinder interface {
	Get(ctx context.Context, channelID string) (Room, error)
	// List returns the rooms of a guild ordered by creation time.
	// An empty guildID lists every room.
	List(ctx context.Context, guildID string) ([]Room, error)
}

type RoomRepository interface {
	RoomPersister
	RoomFinder
}
