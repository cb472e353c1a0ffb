package handler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/discordtest"
	"github.com/glizzus/voice-rooms/internal/generator"
	"github.com/glizzus/voice-rooms/internal/handler"
	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/glizzus/voice-rooms/internal/rooms"
	"github.com/google/go-cmp/cmp"
)

const (
	guildID    = "100"
	lobbyID    = "200"
	categoryID = "300"
	textID     = "400"
	creatorID  = "7"
)

type fixture struct {
	fake     *discordtest.Fake
	manager  *rooms.Manager
	flows    *handler.FlowManager
	controls *handler.Controls
	commands *handler.Commands
	perms    map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := discordtest.New()
	fake.AddGuild(guildID)
	fake.AddChannel(guildID, lobbyID, discordgo.ChannelTypeGuildVoice)
	fake.AddChannel(guildID, categoryID, discordgo.ChannelTypeGuildCategory)
	fake.AddChannel(guildID, textID, discordgo.ChannelTypeGuildText)

	manager := rooms.NewManager(rooms.Deps{
		API:      fake,
		World:    fake,
		Registry: rooms.NewRegistry(repository.NewMemoryRoomRepository()),
	}, rooms.Options{LobbyID: lobbyID, CategoryID: categoryID, MonitorInterval: time.Hour})
	t.Cleanup(manager.Close)

	f := &fixture{
		fake:     fake,
		manager:  manager,
		flows:    handler.NewFlowManager(&generator.SequenceGenerator{Prefix: "flow"}),
		controls: handler.NewControls(manager, 10*time.Millisecond),
		perms:    make(map[string]int64),
	}
	f.commands = handler.NewCommands(manager, "!", func(userID, channelID string) (int64, error) {
		perms, ok := f.perms[userID]
		if !ok {
			return 0, errors.New("member not cached")
		}
		return perms, nil
	})
	f.flows.RegisterFlow(f.controls.Flows()...)
	f.flows.RegisterFlow(f.commands.Flows()...)
	return f
}

func (f *fixture) createRoom(t *testing.T) repository.Room {
	t.Helper()
	f.manager.HandleVoiceStateUpdate(context.Background(), f.fake.Join(guildID, creatorID, lobbyID))
	room, ok := f.manager.Registry().Get(f.fake.VoiceChannelOf(guildID, creatorID))
	if !ok {
		t.Fatalf("room was not created: %s", f.fake)
	}
	return room
}

// interact runs i as userID and returns the response it got.
func (f *fixture) interact(t *testing.T, i *discordgo.InteractionCreate, userID string, perms int64) *discordgo.InteractionResponse {
	t.Helper()
	i.GuildID = guildID
	i.Member = &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user" + userID}, Permissions: perms}

	before := len(f.fake.Responses)
	handler.HandleInteraction(context.Background(), f.flows, f.fake, i)
	if len(f.fake.Responses) != before+1 {
		t.Fatalf("expected exactly one response, got %d", len(f.fake.Responses)-before)
	}
	return f.fake.LastResponse()
}

func assertEphemeral(t *testing.T, resp *discordgo.InteractionResponse, content string) {
	t.Helper()
	if diff := cmp.Diff(presenters.Ephemeral(content), resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestPrivacyButtons(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)

	resp := f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDPrivate, room.ChannelID)), creatorID, 0)
	assertEphemeral(t, resp, presenters.PrivateText)
	if _, ok := f.fake.Overwrites(room.ChannelID)[guildID]; !ok {
		t.Errorf("@everyone overwrite not set")
	}

	resp = f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDPublic, room.ChannelID)), "9", discordgo.PermissionAdministrator)
	assertEphemeral(t, resp, presenters.PublicText)
	if _, ok := f.fake.Overwrites(room.ChannelID)[guildID]; ok {
		t.Errorf("@everyone overwrite not removed")
	}
}

func TestButtonsRefuseStrangers(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)

	for _, componentID := range []string{
		presenters.ComponentIDPrivate,
		presenters.ComponentIDPublic,
		presenters.ComponentIDLimit,
		presenters.ComponentIDRename,
		presenters.ComponentIDDelete,
	} {
		resp := f.interact(t, componentInteraction(presenters.CustomID(componentID, room.ChannelID)), "8", 0)
		assertEphemeral(t, resp, presenters.NotAllowedText)
	}
	if f.flows.Pending() != 0 {
		t.Errorf("refused flows should not be remembered")
	}
	if _, ok := f.fake.Channel(room.ChannelID); !ok {
		t.Errorf("room was deleted by a stranger")
	}
}

func TestButtonOnUntrackedRoom(t *testing.T) {
	f := newFixture(t)
	resp := f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDPrivate, "999")), creatorID, 0)
	assertEphemeral(t, resp, presenters.NotTrackedText)
}

func TestLimitFlow(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)
	button := presenters.CustomID(presenters.ComponentIDLimit, room.ChannelID)

	tc := []struct {
		name     string
		input    string
		expected string
		limit    int
	}{
		{name: "valid", input: "5", expected: presenters.LimitText(5), limit: 5},
		{name: "unlimited", input: " 0 ", expected: presenters.LimitText(0), limit: 0},
		{name: "not a number", input: "abc", expected: presenters.NotANumberText, limit: 0},
		{name: "too large", input: "150", expected: presenters.InvalidLimitText, limit: 0},
	}

	for n, testCase := range tc {
		t.Run(testCase.name, func(t *testing.T) {
			resp := f.interact(t, componentInteraction(button), creatorID, 0)
			instanceID := fmt.Sprintf("flow-%d", n+1)
			if diff := cmp.Diff(presenters.LimitModal(instanceID), resp); diff != "" {
				t.Fatalf("modal mismatch (-want +got):\n%s", diff)
			}

			submit := modalInteraction(presenters.CustomID(presenters.ComponentIDLimitModal, instanceID), map[string]string{
				presenters.TextInputIDLimit: testCase.input,
			})
			assertEphemeral(t, f.interact(t, submit, creatorID, 0), testCase.expected)
			if got := f.fake.Limit(room.ChannelID); got != testCase.limit {
				t.Errorf("expected limit %d, got %d", testCase.limit, got)
			}
			if f.flows.Pending() != 0 {
				t.Errorf("flow not finished after submit")
			}
		})
	}
}

func TestRenameFlow(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)

	resp := f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDRename, room.ChannelID)), creatorID, 0)
	if diff := cmp.Diff(presenters.RenameModal("flow-1", room.Name), resp); diff != "" {
		t.Fatalf("modal mismatch (-want +got):\n%s", diff)
	}

	submit := modalInteraction(presenters.CustomID(presenters.ComponentIDRenameModal, "flow-1"), map[string]string{
		presenters.TextInputIDName: "игры",
	})
	assertEphemeral(t, f.interact(t, submit, creatorID, 0), presenters.RenamedText(room.Name, "игры"))

	if ch, _ := f.fake.Channel(room.ChannelID); ch.Name != "игры" {
		t.Errorf("channel not renamed: %q", ch.Name)
	}
}

func TestExpiredModal(t *testing.T) {
	f := newFixture(t)
	submit := modalInteraction(presenters.CustomID(presenters.ComponentIDRenameModal, "gone"), map[string]string{
		presenters.TextInputIDName: "x",
	})
	assertEphemeral(t, f.interact(t, submit, creatorID, 0), presenters.ExpiredText)
}

func TestDeleteButton(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)

	resp := f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDDelete, room.ChannelID)), creatorID, 0)
	assertEphemeral(t, resp, presenters.DeleteScheduledText(10*time.Millisecond))

	f.controls.Wait()
	if _, ok := f.fake.Channel(room.ChannelID); ok {
		t.Errorf("room not deleted")
	}
	if f.manager.Registry().IsTracked(room.ChannelID) {
		t.Errorf("room still tracked")
	}
}

func TestDeleteButtonReportsFailure(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t)
	f.fake.Fail("ChannelDelete", errors.New("boom"))

	f.interact(t, componentInteraction(presenters.CustomID(presenters.ComponentIDDelete, room.ChannelID)), creatorID, 0)
	f.controls.Wait()

	if len(f.fake.Followups) != 1 {
		t.Fatalf("expected one followup, got %d", len(f.fake.Followups))
	}
	followup := f.fake.Followups[0]
	if followup.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("expected an ephemeral followup")
	}
	if followup.Content != presenters.DeleteFailedText(errors.New("failed to delete room: boom")) {
		t.Errorf("unexpected followup %q", followup.Content)
	}
}

func TestResponseText(t *testing.T) {
	tc := []struct {
		err      error
		expected string
	}{
		{&handler.UserError{Message: "custom"}, "custom"},
		{rooms.ErrNotAllowed, presenters.NotAllowedText},
		{rooms.ErrNotTracked, presenters.NotTrackedText},
		{rooms.ErrInvalidLimit, presenters.InvalidLimitText},
		{rooms.ErrInvalidName, presenters.InvalidNameText},
		{errors.New("boom"), presenters.ErrorText(errors.New("boom"))},
	}
	for _, testCase := range tc {
		if got := handler.ResponseText(testCase.err); got != testCase.expected {
			t.Errorf("ResponseText(%v): expected %q, got %q", testCase.err, testCase.expected, got)
		}
	}
}
