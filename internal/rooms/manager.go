package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/repository"
)

type Options struct {
	LobbyID         string
	CategoryID      string
	MonitorInterval time.Duration
}

type Deps struct {
	API       API
	World     World
	Registry  *Registry
	Publisher events.Publisher
	Metrics   *Metrics
}

type Stats struct {
	ActiveRooms int
	Guilds      int
	Latency     time.Duration
}

type Manager struct {
	api       API
	world     World
	registry  *Registry
	publisher events.Publisher
	metrics   *Metrics
	opts      Options

	// cleaning holds rooms with a deletion in flight.
	cleaningMu sync.Mutex
	cleaning   map[string]struct{}

	monitors sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	now func() time.Time
}

func NewManager(deps Deps, opts Options) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = events.LogPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:       deps.API,
		world:     deps.World,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		opts:      opts,
		cleaning:  make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Close stops every room monitor and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.monitors.Wait()
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = m.now().UTC()
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		slog.Warn("failed to publish room event", append(e.LogAttrs(), slog.Any("error", err))...)
	}
}

// HandleVoiceStateUpdate creates a room when a member joins the lobby and
// cleans up the room a member left if it is now empty.
func (m *Manager) HandleVoiceStateUpdate(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	if vs == nil || vs.VoiceState == nil {
		return
	}

	if vs.ChannelID != "" && vs.ChannelID == m.opts.LobbyID {
		member := vs.Member
		if member == nil {
			member = &discordgo.Member{User: &discordgo.User{ID: vs.UserID}}
		}
		if member.User == nil {
			member.User = &discordgo.User{ID: vs.UserID}
		}
		if _, err := m.CreateRoom(ctx, vs.GuildID, member); err != nil {
			slog.Error("failed to create room", "guildID", vs.GuildID, "userID", vs.UserID, "error", err)
		}
	}

	before := vs.BeforeUpdate
	if before == nil || before.ChannelID == "" || before.ChannelID == vs.ChannelID {
		return
	}
	room, tracked := m.registry.Get(before.ChannelID)
	if !tracked || !m.isEmpty(room) {
		return
	}
	if err := m.CleanupRoom(ctx, room.ChannelID); err != nil && !errors.Is(err, ErrNotTracked) {
		slog.Error("failed to clean up room", "channelID", room.ChannelID, "error", err)
	}
}

// HandleChannelDelete untracks a room deleted outside of CleanupRoom,
// e.g. by a moderator or the control panel.
func (m *Manager) HandleChannelDelete(ctx context.Context, cd *discordgo.ChannelDelete) {
	if cd == nil || cd.Channel == nil {
		return
	}
	m.forget(ctx, cd.ID, "")
}

// isEmpty is false when occupancy cannot be determined.
func (m *Manager) isEmpty(room repository.Room) bool {
	n, known := m.world.Occupants(room.GuildID, room.ChannelID)
	return known && n == 0
}

// gone reports whether the room's channel was deleted. Lookup failures
// count as not gone.
func (m *Manager) gone(channelID string) bool {
	exists, err := m.world.ChannelExists(channelID)
	if err != nil {
		slog.Warn("failed to look up room channel", "channelID", channelID, "error", err)
		return false
	}
	return !exists
}

func (m *Manager) forget(ctx context.Context, channelID, userID string) bool {
	room, ok := m.registry.Untrack(ctx, channelID)
	if !ok {
		return false
	}
	m.metrics.roomDeleted()
	m.publish(ctx, events.Event{
		Type:      events.RoomDeleted,
		ChannelID: room.ChannelID,
		GuildID:   room.GuildID,
		UserID:    userID,
		Name:      room.Name,
	})
	slog.Info("room untracked", "channelID", room.ChannelID, "name", room.Name)
	return true
}

// CreateRoom creates a room for member, moves them into it and posts the
// control panel. Failing to move the member or post the panel does not undo
// the room; an unused room is removed by its monitor.
func (m *Manager) CreateRoom(ctx context.Context, guildID string, member *discordgo.Member) (repository.Room, error) {
	category, ok := m.world.CachedChannel(m.opts.CategoryID)
	if !ok || category.Type != discordgo.ChannelTypeGuildCategory || category.GuildID != guildID {
		return repository.Room{}, fmt.Errorf("category %s in guild %s: %w", m.opts.CategoryID, guildID, ErrCategoryNotFound)
	}

	name := ChannelName(DisplayName(member))
	channel, err := m.api.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:      name,
		Type:      discordgo.ChannelTypeGuildVoice,
		ParentID:  m.opts.CategoryID,
		UserLimit: 0,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			CreatorOverwrite(member.User.ID),
		},
	})
	if err != nil {
		if IsForbidden(err) {
			return repository.Room{}, fmt.Errorf("missing permissions to create voice channel in guild %s: %w", guildID, err)
		}
		return repository.Room{}, fmt.Errorf("failed to create voice channel: %w", err)
	}

	room := repository.Room{
		ChannelID: channel.ID,
		GuildID:   guildID,
		CreatorID: member.User.ID,
		Name:      name,
		CreatedAt: m.now().UTC(),
	}
	if err := m.registry.Track(ctx, room); err != nil {
		slog.Warn("room tracked in memory only", "channelID", room.ChannelID, "error", err)
	}
	m.metrics.roomCreated()

	channelID := channel.ID
	if err := m.api.GuildMemberMove(guildID, member.User.ID, &channelID); err != nil {
		slog.Warn("failed to move member into room", "channelID", channelID, "userID", member.User.ID, "error", err)
	}
	slog.Info("created room", "channelID", channelID, "name", name, "creator", DisplayName(member))

	msg, err := m.api.ChannelMessageSendComplex(channelID, presenters.ControlPanel(room))
	if err != nil {
		slog.Error("failed to send control panel", "channelID", channelID, "error", err)
	} else {
		room.ControlMessageID = msg.ID
		if err := m.registry.SetControlMessage(ctx, channelID, msg.ID); err != nil {
			slog.Warn("failed to record control panel", "channelID", channelID, "error", err)
		}
	}

	m.publish(ctx, events.Event{
		Type:      events.RoomCreated,
		ChannelID: room.ChannelID,
		GuildID:   room.GuildID,
		UserID:    room.CreatorID,
		Name:      room.Name,
		At:        room.CreatedAt,
	})
	m.Monitor(channelID)
	return room, nil
}

// Monitor watches a tracked room in the background, removing it once it is
// empty or no longer exists.
func (m *Manager) Monitor(channelID string) {
	m.monitors.Add(1)
	go func() {
		defer m.monitors.Done()
		m.monitor(m.ctx, channelID)
	}()
}

func (m *Manager) monitor(ctx context.Context, channelID string) {
	ticker := time.NewTicker(m.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		room, tracked := m.registry.Get(channelID)
		if !tracked {
			return
		}
		if m.gone(channelID) {
			m.forget(ctx, channelID, "")
			return
		}
		if m.isEmpty(room) {
			if err := m.CleanupRoom(ctx, channelID); err != nil && !errors.Is(err, ErrNotTracked) {
				slog.Error("monitor failed to clean up room", "channelID", channelID, "error", err)
			}
			return
		}
	}
}

func (m *Manager) claim(channelID string) bool {
	m.cleaningMu.Lock()
	defer m.cleaningMu.Unlock()
	if _, busy := m.cleaning[channelID]; busy {
		return false
	}
	m.cleaning[channelID] = struct{}{}
	return true
}

func (m *Manager) release(channelID string) {
	m.cleaningMu.Lock()
	delete(m.cleaning, channelID)
	m.cleaningMu.Unlock()
}

// CleanupRoom deletes an empty tracked room along with its control panel.
// It returns ErrNotEmpty, leaving the room alone, if anyone is connected.
func (m *Manager) CleanupRoom(ctx context.Context, channelID string) error {
	if !m.claim(channelID) {
		return fmt.Errorf("room %s is already being cleaned up: %w", channelID, ErrNotTracked)
	}
	defer m.release(channelID)

	room, ok := m.registry.Get(channelID)
	if !ok {
		return fmt.Errorf("room %s: %w", channelID, ErrNotTracked)
	}
	n, known := m.world.Occupants(room.GuildID, channelID)
	if !known {
		return fmt.Errorf("room %s: %w", channelID, ErrUnknownOccupancy)
	}
	if n > 0 {
		slog.Warn("refusing to delete occupied room", "channelID", channelID, "name", room.Name, "occupants", n)
		return fmt.Errorf("room %s has %d members: %w", channelID, n, ErrNotEmpty)
	}

	if room.ControlMessageID != "" {
		err := m.api.ChannelMessageDelete(channelID, room.ControlMessageID)
		if err != nil && !IsNotFound(err) && !IsForbidden(err) {
			slog.Warn("could not delete control panel", "channelID", channelID, "error", err)
		}
	}

	if _, err := m.api.ChannelDelete(channelID); err != nil {
		if IsNotFound(err) {
			m.forget(ctx, channelID, "")
			return nil
		}
		if IsForbidden(err) {
			return fmt.Errorf("missing permissions to delete room %s: %w", channelID, err)
		}
		return fmt.Errorf("failed to delete room %s: %w", channelID, err)
	}

	m.forget(ctx, channelID, "")
	slog.Info("deleted empty room", "channelID", channelID, "name", room.Name)
	return nil
}

// Sweep removes every tracked room that is gone or empty and reports how
// many empty rooms were deleted.
func (m *Manager) Sweep(ctx context.Context) int {
	cleaned := 0
	for _, room := range m.registry.Rooms() {
		if m.gone(room.ChannelID) {
			m.forget(ctx, room.ChannelID, "")
			continue
		}
		if !m.isEmpty(room) {
			continue
		}
		if err := m.CleanupRoom(ctx, room.ChannelID); err != nil {
			slog.Warn("sweep failed to clean up room", "channelID", room.ChannelID, "error", err)
			continue
		}
		cleaned++
	}
	return cleaned
}

// Resume starts monitors for every tracked room, typically after Registry.Load.
func (m *Manager) Resume() {
	for _, room := range m.registry.Rooms() {
		m.Monitor(room.ChannelID)
	}
}

func (m *Manager) Stats() Stats {
	return Stats{
		ActiveRooms: m.registry.Len(),
		Guilds:      m.world.GuildCount(),
		Latency:     m.world.Latency(),
	}
}
