// Package discordtest provides an in-memory stand-in for the Discord API.
package discordtest

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/rooms"
)

// Move records a GuildMemberMove call.
type Move struct {
	GuildID   string
	UserID    string
	ChannelID string
}

// Overwrite records a channel permission overwrite.
type Overwrite struct {
	Type  discordgo.PermissionOverwriteType
	Allow int64
	Deny  int64
}

// Fake implements rooms.API, rooms.World and handler.DiscordSession.
// Voice state changes are applied with Join and Leave, which return the
// update the gateway would deliver.
type Fake struct {
	mu sync.Mutex

	channels    map[string]*discordgo.Channel
	guilds      map[string]bool
	voiceStates map[string]map[string]string // guild → user → channel
	overwrites  map[string]map[string]Overwrite
	limits      map[string]int
	messages    map[string]string // message → channel
	failures    map[string]error

	Moves     []Move
	Sent      []*discordgo.MessageSend
	Responses []*discordgo.InteractionResponse
	Followups []*discordgo.WebhookParams
	Edits     []*discordgo.WebhookEdit
	Deleted   []string

	nextID  int
	latency time.Duration
}

func New() *Fake {
	return &Fake{
		channels:    make(map[string]*discordgo.Channel),
		guilds:      make(map[string]bool),
		voiceStates: make(map[string]map[string]string),
		overwrites:  make(map[string]map[string]Overwrite),
		limits:      make(map[string]int),
		messages:    make(map[string]string),
		failures:    make(map[string]error),
		nextID:      1000,
		latency:     42 * time.Millisecond,
	}
}

func (f *Fake) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

// Fail makes every later call to method return err until cleared with a nil err.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

func (f *Fake) failure(method string) error {
	return f.failures[method]
}

func (f *Fake) AddGuild(guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds[guildID] = true
	if f.voiceStates[guildID] == nil {
		f.voiceStates[guildID] = make(map[string]string)
	}
}

func (f *Fake) AddChannel(guildID, channelID string, typ discordgo.ChannelType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = &discordgo.Channel{ID: channelID, GuildID: guildID, Type: typ}
}

// RemoveChannel deletes a channel as if a moderator did it.
func (f *Fake) RemoveChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
}

func (f *Fake) Channel(channelID string) (*discordgo.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, false
	}
	cp := *ch
	return &cp, true
}

func (f *Fake) Limit(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limits[channelID]
}

func (f *Fake) Overwrites(channelID string) map[string]Overwrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Overwrite, len(f.overwrites[channelID]))
	for k, v := range f.overwrites[channelID] {
		out[k] = v
	}
	return out
}

// MessageExists reports whether a message was sent and not deleted.
func (f *Fake) MessageExists(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[messageID]
	return ok
}

func (f *Fake) LastResponse() *discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return nil
	}
	return f.Responses[len(f.Responses)-1]
}

func (f *Fake) setVoice(guildID, userID, channelID string) *discordgo.VoiceStateUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voiceStates[guildID] == nil {
		f.voiceStates[guildID] = make(map[string]string)
	}

	var before *discordgo.VoiceState
	if prev, ok := f.voiceStates[guildID][userID]; ok {
		before = &discordgo.VoiceState{GuildID: guildID, UserID: userID, ChannelID: prev}
	}
	if channelID == "" {
		delete(f.voiceStates[guildID], userID)
	} else {
		f.voiceStates[guildID][userID] = channelID
	}

	return &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   guildID,
			UserID:    userID,
			ChannelID: channelID,
			Member: &discordgo.Member{
				GuildID: guildID,
				User:    &discordgo.User{ID: userID, Username: "user" + userID},
			},
		},
		BeforeUpdate: before,
	}
}

// Join connects a member to a voice channel.
func (f *Fake) Join(guildID, userID, channelID string) *discordgo.VoiceStateUpdate {
	return f.setVoice(guildID, userID, channelID)
}

// Leave disconnects a member from voice.
func (f *Fake) Leave(guildID, userID string) *discordgo.VoiceStateUpdate {
	return f.setVoice(guildID, userID, "")
}

// VoiceChannelOf returns the channel a member is connected to.
func (f *Fake) VoiceChannelOf(guildID, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voiceStates[guildID][userID]
}

func notFound(what string) error {
	return rooms.NewRESTError(http.StatusNotFound, "Unknown "+what)
}

func (f *Fake) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GuildChannelCreateComplex"); err != nil {
		return nil, err
	}
	ch := &discordgo.Channel{
		ID:        f.newID(),
		GuildID:   guildID,
		Name:      data.Name,
		Type:      data.Type,
		ParentID:  data.ParentID,
		UserLimit: data.UserLimit,
	}
	for _, po := range data.PermissionOverwrites {
		ch.PermissionOverwrites = append(ch.PermissionOverwrites, po)
	}
	f.channels[ch.ID] = ch
	cp := *ch
	return &cp, nil
}

func (f *Fake) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelDelete"); err != nil {
		return nil, err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, notFound("Channel")
	}
	delete(f.channels, channelID)
	f.Deleted = append(f.Deleted, channelID)
	// Discord disconnects everyone in a deleted voice channel.
	for _, users := range f.voiceStates {
		for user, c := range users {
			if c == channelID {
				delete(users, user)
			}
		}
	}
	return ch, nil
}

func (f *Fake) ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelEdit"); err != nil {
		return nil, err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, notFound("Channel")
	}
	if data.Name != "" {
		ch.Name = data.Name
	}
	cp := *ch
	return &cp, nil
}

func (f *Fake) ChannelUserLimit(channelID string, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelUserLimit"); err != nil {
		return err
	}
	if _, ok := f.channels[channelID]; !ok {
		return notFound("Channel")
	}
	f.limits[channelID] = limit
	return nil
}

func (f *Fake) ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelPermissionSet"); err != nil {
		return err
	}
	if _, ok := f.channels[channelID]; !ok {
		return notFound("Channel")
	}
	if f.overwrites[channelID] == nil {
		f.overwrites[channelID] = make(map[string]Overwrite)
	}
	f.overwrites[channelID][targetID] = Overwrite{Type: targetType, Allow: allow, Deny: deny}
	return nil
}

func (f *Fake) ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelPermissionDelete"); err != nil {
		return err
	}
	if _, ok := f.overwrites[channelID][targetID]; !ok {
		return notFound("Overwrite")
	}
	delete(f.overwrites[channelID], targetID)
	return nil
}

func (f *Fake) GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	if err := f.failure("GuildMemberMove"); err != nil {
		f.mu.Unlock()
		return err
	}
	target := ""
	if channelID != nil {
		target = *channelID
	}
	f.Moves = append(f.Moves, Move{GuildID: guildID, UserID: userID, ChannelID: target})
	_, connected := f.voiceStates[guildID][userID]
	f.mu.Unlock()

	if !connected {
		return rooms.NewRESTError(http.StatusBadRequest, "Target user is not connected to voice.")
	}
	f.setVoice(guildID, userID, target)
	return nil
}

func (f *Fake) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelMessageSendComplex"); err != nil {
		return nil, err
	}
	if _, ok := f.channels[channelID]; !ok {
		return nil, notFound("Channel")
	}
	id := f.newID()
	f.messages[id] = channelID
	f.Sent = append(f.Sent, data)
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: data.Content, Embeds: data.Embeds}, nil
}

func (f *Fake) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelMessageDelete"); err != nil {
		return err
	}
	if f.messages[messageID] != channelID {
		return notFound("Message")
	}
	delete(f.messages, messageID)
	return nil
}

func (f *Fake) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("InteractionRespond"); err != nil {
		return err
	}
	f.Responses = append(f.Responses, resp)
	return nil
}

func (f *Fake) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, newresp)
	return &discordgo.Message{ID: f.newID()}, nil
}

func (f *Fake) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Followups = append(f.Followups, data)
	return &discordgo.Message{ID: f.newID(), Content: data.Content}, nil
}

func (f *Fake) CachedChannel(channelID string) (*discordgo.Channel, bool) {
	return f.Channel(channelID)
}

func (f *Fake) ChannelExists(channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ChannelExists"); err != nil {
		return false, err
	}
	_, ok := f.channels[channelID]
	return ok, nil
}

func (f *Fake) Occupants(guildID, channelID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.guilds[guildID] {
		return 0, false
	}
	n := 0
	for _, c := range f.voiceStates[guildID] {
		if c == channelID {
			n++
		}
	}
	return n, true
}

func (f *Fake) GuildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.guilds)
}

func (f *Fake) Latency() time.Duration {
	return f.latency
}

var (
	_ rooms.API   = (*Fake)(nil)
	_ rooms.World = (*Fake)(nil)
)

// String summarises the fake for test failure messages.
func (f *Fake) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("channels=%d voice=%v moves=%d sent=%d responses=%d", len(f.channels), f.voiceStates, len(f.Moves), len(f.Sent), len(f.Responses))
}
