package rooms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/repository"
)

// Actor is the member using a room's control panel.
type Actor struct {
	UserID      string
	DisplayName string
	Permissions int64
}

func ActorFromMember(m *discordgo.Member) Actor {
	if m == nil || m.User == nil {
		return Actor{}
	}
	return Actor{
		UserID:      m.User.ID,
		DisplayName: DisplayName(m),
		Permissions: m.Permissions,
	}
}

func (a Actor) IsAdmin() bool {
	return a.Permissions&discordgo.PermissionAdministrator != 0
}

// CanControl reports whether actor may use the room's control panel.
func CanControl(room repository.Room, actor Actor) bool {
	return actor.UserID != "" && (actor.UserID == room.CreatorID || actor.IsAdmin())
}

// Authorize returns the tracked room if actor may control it.
func (m *Manager) Authorize(channelID string, actor Actor) (repository.Room, error) {
	room, ok := m.registry.Get(channelID)
	if !ok {
		return repository.Room{}, fmt.Errorf("room %s: %w", channelID, ErrNotTracked)
	}
	if !CanControl(room, actor) {
		return repository.Room{}, ErrNotAllowed
	}
	return room, nil
}

// MakePrivate stops @everyone from connecting to the room.
func (m *Manager) MakePrivate(ctx context.Context, channelID string, actor Actor) error {
	room, err := m.Authorize(channelID, actor)
	if err != nil {
		return err
	}
	// The @everyone role shares the guild's id.
	err = m.api.ChannelPermissionSet(channelID, room.GuildID, discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionVoiceConnect)
	if err != nil {
		return fmt.Errorf("failed to make room private: %w", err)
	}
	slog.Info("room made private", "channelID", channelID, "by", actor.DisplayName)
	m.publish(ctx, events.Event{Type: events.RoomPrivate, ChannelID: channelID, GuildID: room.GuildID, UserID: actor.UserID})
	return nil
}

// MakePublic removes the @everyone overwrite set by MakePrivate.
func (m *Manager) MakePublic(ctx context.Context, channelID string, actor Actor) error {
	room, err := m.Authorize(channelID, actor)
	if err != nil {
		return err
	}
	err = m.api.ChannelPermissionDelete(channelID, room.GuildID)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to make room public: %w", err)
	}
	slog.Info("room made public", "channelID", channelID, "by", actor.DisplayName)
	m.publish(ctx, events.Event{Type: events.RoomPublic, ChannelID: channelID, GuildID: room.GuildID, UserID: actor.UserID})
	return nil
}

// SetLimit sets the room's user limit; 0 means unlimited.
func (m *Manager) SetLimit(ctx context.Context, channelID string, actor Actor, limit int) error {
	room, err := m.Authorize(channelID, actor)
	if err != nil {
		return err
	}
	if err := ValidateLimit(limit); err != nil {
		return err
	}
	if err := m.api.ChannelUserLimit(channelID, limit); err != nil {
		return fmt.Errorf("failed to set user limit: %w", err)
	}
	slog.Info("room user limit set", "channelID", channelID, "limit", limit, "by", actor.DisplayName)
	m.publish(ctx, events.Event{Type: events.RoomLimit, ChannelID: channelID, GuildID: room.GuildID, UserID: actor.UserID, Limit: limit})
	return nil
}

// Rename renames the room and returns its previous name.
func (m *Manager) Rename(ctx context.Context, channelID string, actor Actor, name string) (string, error) {
	room, err := m.Authorize(channelID, actor)
	if err != nil {
		return "", err
	}
	name, err = ValidateName(name)
	if err != nil {
		return "", err
	}
	if _, err := m.api.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}); err != nil {
		return "", fmt.Errorf("failed to rename room: %w", err)
	}
	if err := m.registry.Rename(ctx, channelID, name); err != nil {
		slog.Warn("failed to record room name", "channelID", channelID, "error", err)
	}
	slog.Info("room renamed", "channelID", channelID, "from", room.Name, "to", name, "by", actor.DisplayName)
	m.publish(ctx, events.Event{Type: events.RoomRenamed, ChannelID: channelID, GuildID: room.GuildID, UserID: actor.UserID, Name: name})
	return room.Name, nil
}

// Delete removes the room at its controller's request, occupied or not.
func (m *Manager) Delete(ctx context.Context, channelID string, actor Actor) error {
	if _, err := m.Authorize(channelID, actor); err != nil {
		return err
	}
	if _, err := m.api.ChannelDelete(channelID); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	slog.Info("room deleted by controller", "channelID", channelID, "by", actor.DisplayName)
	m.forget(ctx, channelID, actor.UserID)
	return nil
}
