package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/rooms"
)

// DiscordSession is the part of *discordgo.Session interaction handlers use.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ DiscordSession = (*discordgo.Session)(nil)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)
type VoiceStateUpdateHandler = func(*discordgo.Session, *discordgo.VoiceStateUpdate)
type ChannelDeleteHandler = func(*discordgo.Session, *discordgo.ChannelDelete)
type MessageCreateHandler = func(*discordgo.Session, *discordgo.MessageCreate)

// ListeningTo is shown as the bot's presence.
const ListeningTo = "голосовые каналы"

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "username", r.User.Username, "userID", r.User.ID, "guilds", len(r.Guilds))
	if err := s.UpdateListeningStatus(ListeningTo); err != nil {
		slog.Warn("failed to update presence", "error", err)
	}
}

// HandleInteraction routes i through fm and reports failures to the user.
func HandleInteraction(ctx context.Context, fm *FlowManager, s DiscordSession, i *discordgo.InteractionCreate) {
	err := fm.Router(ctx, s, i)
	if err == nil {
		return
	}

	slog.Warn("interaction failed", "type", i.Type.String(), "guildID", i.GuildID, "error", err)
	if err := s.InteractionRespond(i.Interaction, presenters.Ephemeral(ResponseText(err))); err != nil {
		slog.Error("failed to report interaction error", "error", err)
	}
}

func MakeInteractionCreateHandler(fm *FlowManager) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		HandleInteraction(context.Background(), fm, s, i)
	}
}

func MakeVoiceStateUpdateHandler(manager *rooms.Manager) VoiceStateUpdateHandler {
	return func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		manager.HandleVoiceStateUpdate(context.Background(), vs)
	}
}

func MakeChannelDeleteHandler(manager *rooms.Manager) ChannelDeleteHandler {
	return func(s *discordgo.Session, cd *discordgo.ChannelDelete) {
		manager.HandleChannelDelete(context.Background(), cd)
	}
}

func MakeMessageCreateHandler(commands *Commands) MessageCreateHandler {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		commands.HandleMessage(context.Background(), s, m)
	}
}

// StatePermissions looks permissions up in the session's state cache.
func StatePermissions(s *discordgo.Session) PermissionLookup {
	return func(userID, channelID string) (int64, error) {
		return s.State.UserChannelPermissions(userID, channelID)
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
	VoiceStateUpdate  VoiceStateUpdateHandler
	ChannelDelete     ChannelDeleteHandler
	MessageCreate     MessageCreateHandler
}

// Intents are the gateway events the bot needs. Message content is a
// privileged intent and must be enabled for the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// NewSession creates a session with the bot's intents. Handlers can be
// attached later with AddHandlers, once they exist.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackVoice = true
	s.State.TrackChannels = true
	return s, nil
}

func AddHandlers(s *discordgo.Session, handlers Handlers) {
	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}
	if handlers.VoiceStateUpdate != nil {
		s.AddHandler(handlers.VoiceStateUpdate)
	}
	if handlers.ChannelDelete != nil {
		s.AddHandler(handlers.ChannelDelete)
	}
	if handlers.MessageCreate != nil {
		s.AddHandler(handlers.MessageCreate)
	}
}
