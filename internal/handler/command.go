package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/rooms"
)

const (
	CommandStats   = "stats"
	CommandCleanup = "cleanup"
)

var adminPermission int64 = discordgo.PermissionAdministrator

var allowInDMs = false

// SlashCommands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:                     CommandStats,
		Description:              "Show temporary voice channel statistics",
		DefaultMemberPermissions: &adminPermission,
		DMPermission:             &allowInDMs,
	},
	{
		Name:                     CommandCleanup,
		Description:              "Delete every empty temporary voice channel",
		DefaultMemberPermissions: &adminPermission,
		DMPermission:             &allowInDMs,
	},
}

// EstablishCommands registers SlashCommands for guildID, or globally when
// guildID is empty.
func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, SlashCommands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}

// PermissionLookup resolves a member's permissions in a channel.
type PermissionLookup func(userID, channelID string) (int64, error)

// Commands implements the administrator commands, both as slash commands
// and as prefixed messages.
type Commands struct {
	manager     *rooms.Manager
	prefix      string
	permissions PermissionLookup
	now         func() time.Time
}

func NewCommands(manager *rooms.Manager, prefix string, permissions PermissionLookup) *Commands {
	return &Commands{
		manager:     manager,
		prefix:      prefix,
		permissions: permissions,
		now:         time.Now,
	}
}

func (c *Commands) statsEmbed() *discordgo.MessageEmbed {
	stats := c.manager.Stats()
	return presenters.StatsEmbed(stats.ActiveRooms, stats.Guilds, stats.Latency, c.now())
}

func (c *Commands) cleanup(ctx context.Context) string {
	cleaned := c.manager.Sweep(ctx)
	slog.Info("manual cleanup finished", "cleaned", cleaned)
	return presenters.CleanupText(cleaned)
}

func slashMatcher(name string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		return i.ApplicationCommandData().Name == name
	}
}

func requireAdmin(i *discordgo.InteractionCreate) error {
	if !actorOf(i).IsAdmin() {
		return &UserError{Message: presenters.AdminOnlyText}
	}
	return nil
}

// Flows returns the slash command flows to register with a FlowManager.
func (c *Commands) Flows() []*Flow {
	stats := &Flow{
		ID: CommandStats,
		Root: &Node{
			ID:      CommandStats,
			Matcher: slashMatcher(CommandStats),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				if err := requireAdmin(i); err != nil {
					return err
				}
				return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Embeds: []*discordgo.MessageEmbed{c.statsEmbed()},
					},
				})
			},
		},
	}

	cleanup := &Flow{
		ID: CommandCleanup,
		Root: &Node{
			ID:      CommandCleanup,
			Matcher: slashMatcher(CommandCleanup),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				if err := requireAdmin(i); err != nil {
					return err
				}
				// A sweep makes a REST call per room and may outlast the
				// interaction deadline.
				err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
				})
				if err != nil {
					return err
				}
				text := c.cleanup(ctx)
				if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &text}); err != nil {
					slog.Warn("failed to report cleanup", "error", err)
				}
				return nil
			},
		},
	}

	return []*Flow{stats, cleanup}
}

// HandleMessage runs a prefixed command such as "!stats".
func (c *Commands) HandleMessage(ctx context.Context, s DiscordSession, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	name, ok := strings.CutPrefix(strings.TrimSpace(m.Content), c.prefix)
	if !ok || c.prefix == "" {
		return
	}
	name, _, _ = strings.Cut(name, " ")
	if name != CommandStats && name != CommandCleanup {
		return
	}

	reply := &discordgo.MessageSend{Reference: m.Reference()}
	perms, err := c.permissions(m.Author.ID, m.ChannelID)
	switch {
	case err != nil:
		slog.Warn("failed to resolve permissions", "userID", m.Author.ID, "channelID", m.ChannelID, "error", err)
		reply.Content = presenters.AdminOnlyText
	case perms&discordgo.PermissionAdministrator == 0:
		reply.Content = presenters.AdminOnlyText
	case name == CommandStats:
		reply.Embeds = []*discordgo.MessageEmbed{c.statsEmbed()}
	case name == CommandCleanup:
		reply.Content = c.cleanup(ctx)
	}

	if _, err := s.ChannelMessageSendComplex(m.ChannelID, reply); err != nil {
		slog.Error("failed to reply to command", "command", name, "channelID", m.ChannelID, "error", err)
	}
}
