package rooms

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// API is the subset of Discord REST calls used to manage rooms.
// *Gateway satisfies it.
type API interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error
	GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelUserLimit(channelID string, limit int) error
}

// World is the gateway's cached view of guilds and voice states.
type World interface {
	CachedChannel(channelID string) (*discordgo.Channel, bool)
	// ChannelExists falls back to the REST API when the channel is not cached.
	ChannelExists(channelID string) (bool, error)
	// Occupants reports false when the guild is not cached yet.
	Occupants(guildID, channelID string) (int, bool)
	GuildCount() int
	Latency() time.Duration
}

// Gateway adapts a discordgo session to API and World.
type Gateway struct {
	*discordgo.Session
}

func NewGateway(s *discordgo.Session) *Gateway {
	return &Gateway{Session: s}
}

// ChannelUserLimit sets a voice channel's user limit. discordgo.ChannelEdit
// drops a zero limit (omitempty), so the PATCH is sent directly.
func (g *Gateway) ChannelUserLimit(channelID string, limit int) error {
	endpoint := discordgo.EndpointChannel(channelID)
	body := map[string]int{"user_limit": limit}
	_, err := g.RequestWithBucketID(http.MethodPatch, endpoint, body, endpoint)
	return err
}

func (g *Gateway) CachedChannel(channelID string) (*discordgo.Channel, bool) {
	ch, err := g.State.Channel(channelID)
	if err != nil {
		return nil, false
	}
	return ch, true
}

func (g *Gateway) ChannelExists(channelID string) (bool, error) {
	if _, ok := g.CachedChannel(channelID); ok {
		return true, nil
	}
	_, err := g.Channel(channelID)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gateway) Occupants(guildID, channelID string) (int, bool) {
	guild, err := g.State.Guild(guildID)
	if err != nil {
		return 0, false
	}

	g.State.RLock()
	defer g.State.RUnlock()
	return CountOccupants(guild.VoiceStates, channelID), true
}

func (g *Gateway) GuildCount() int {
	g.State.RLock()
	defer g.State.RUnlock()
	return len(g.State.Guilds)
}

func (g *Gateway) Latency() time.Duration {
	return g.HeartbeatLatency()
}

var (
	_ API   = (*Gateway)(nil)
	_ World = (*Gateway)(nil)
)

// CountOccupants returns how many voice states are connected to channelID.
func CountOccupants(voiceStates []*discordgo.VoiceState, channelID string) int {
	n := 0
	for _, vs := range voiceStates {
		if vs != nil && vs.ChannelID == channelID {
			n++
		}
	}
	return n
}

func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a Discord 404, e.g. a channel or
// message that was already deleted.
func IsNotFound(err error) bool {
	return restStatus(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a Discord 403 (missing permissions).
func IsForbidden(err error) bool {
	return restStatus(err) == http.StatusForbidden
}

// NewRESTError builds the error discordgo returns for a failed request.
// It exists for fakes that need to answer like Discord does.
func NewRESTError(status int, message string) error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status, Status: fmt.Sprintf("%d %s", status, http.StatusText(status))},
		ResponseBody: []byte(fmt.Sprintf(`{"message":%q}`, message)),
		Message:      &discordgo.APIErrorMessage{Message: message},
	}
}
