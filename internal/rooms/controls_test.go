package rooms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/discordtest"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/glizzus/voice-rooms/internal/rooms"
	"github.com/google/go-cmp/cmp"
)

func TestCanControl(t *testing.T) {
	room := repository.Room{ChannelID: "1", CreatorID: "creator"}

	tc := []struct {
		name     string
		actor    rooms.Actor
		expected bool
	}{
		{name: "creator", actor: rooms.Actor{UserID: "creator"}, expected: true},
		{name: "administrator", actor: rooms.Actor{UserID: "admin", Permissions: discordgo.PermissionAdministrator}, expected: true},
		{name: "other member", actor: rooms.Actor{UserID: "other", Permissions: discordgo.PermissionManageChannels}, expected: false},
		{name: "no user", actor: rooms.Actor{}, expected: false},
	}

	for _, testCase := range tc {
		t.Run(testCase.name, func(t *testing.T) {
			if got := rooms.CanControl(room, testCase.actor); got != testCase.expected {
				t.Errorf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestActorFromMember(t *testing.T) {
	actor := rooms.ActorFromMember(&discordgo.Member{
		Nick:        "nick",
		User:        &discordgo.User{ID: "1", Username: "user"},
		Permissions: discordgo.PermissionAdministrator,
	})
	expected := rooms.Actor{UserID: "1", DisplayName: "nick", Permissions: discordgo.PermissionAdministrator}
	if diff := cmp.Diff(expected, actor); diff != "" {
		t.Errorf("actor mismatch (-want +got):\n%s", diff)
	}
	if !actor.IsAdmin() {
		t.Errorf("expected administrator")
	}
	if got := rooms.ActorFromMember(nil); got != (rooms.Actor{}) {
		t.Errorf("expected zero actor, got %+v", got)
	}
}

func TestControlsRequireAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	room := f.joinLobby(t, "7")
	stranger := rooms.Actor{UserID: "8"}

	checks := map[string]error{
		"private": f.manager.MakePrivate(ctx, room.ChannelID, stranger),
		"public":  f.manager.MakePublic(ctx, room.ChannelID, stranger),
		"limit":   f.manager.SetLimit(ctx, room.ChannelID, stranger, 5),
		"delete":  f.manager.Delete(ctx, room.ChannelID, stranger),
	}
	_, checks["rename"] = f.manager.Rename(ctx, room.ChannelID, stranger, "x")

	for action, err := range checks {
		if !errors.Is(err, rooms.ErrNotAllowed) {
			t.Errorf("%s: expected ErrNotAllowed, got %v", action, err)
		}
	}
	if _, ok := f.fake.Channel(room.ChannelID); !ok {
		t.Errorf("stranger deleted the room")
	}
	if diff := cmp.Diff([]events.Type{events.RoomCreated}, f.events.Types()); diff != "" {
		t.Errorf("refused actions published events (-want +got):\n%s", diff)
	}

	if _, err := f.manager.Authorize("missing", rooms.Actor{UserID: "7"}); !errors.Is(err, rooms.ErrNotTracked) {
		t.Errorf("expected ErrNotTracked, got %v", err)
	}
}

func TestPrivacy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	room := f.joinLobby(t, "7")
	creator := rooms.Actor{UserID: "7"}

	if err := f.manager.MakePrivate(ctx, room.ChannelID, creator); err != nil {
		t.Fatalf("failed to make room private: %v", err)
	}
	expected := map[string]discordtest.Overwrite{
		guildID: {Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionVoiceConnect},
	}
	if diff := cmp.Diff(expected, f.fake.Overwrites(room.ChannelID)); diff != "" {
		t.Errorf("overwrites mismatch (-want +got):\n%s", diff)
	}

	if err := f.manager.MakePublic(ctx, room.ChannelID, creator); err != nil {
		t.Fatalf("failed to make room public: %v", err)
	}
	if len(f.fake.Overwrites(room.ChannelID)) != 0 {
		t.Errorf("@everyone overwrite not removed")
	}

	// Already public.
	if err := f.manager.MakePublic(ctx, room.ChannelID, creator); err != nil {
		t.Errorf("making a public room public failed: %v", err)
	}

	want := []events.Type{events.RoomCreated, events.RoomPrivate, events.RoomPublic, events.RoomPublic}
	if diff := cmp.Diff(want, f.events.Types()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSetLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	room := f.joinLobby(t, "7")
	admin := rooms.Actor{UserID: "9", Permissions: discordgo.PermissionAdministrator}

	if err := f.manager.SetLimit(ctx, room.ChannelID, admin, 100); !errors.Is(err, rooms.ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if err := f.manager.SetLimit(ctx, room.ChannelID, admin, 5); err != nil {
		t.Fatalf("failed to set limit: %v", err)
	}
	if got := f.fake.Limit(room.ChannelID); got != 5 {
		t.Errorf("expected limit 5, got %d", got)
	}
	if err := f.manager.SetLimit(ctx, room.ChannelID, admin, 0); err != nil {
		t.Fatalf("failed to clear limit: %v", err)
	}
	if got := f.fake.Limit(room.ChannelID); got != 0 {
		t.Errorf("expected limit cleared, got %d", got)
	}

	last := f.events.Events()[len(f.events.Events())-1]
	if last.Type != events.RoomLimit || last.Limit != 0 || last.UserID != "9" {
		t.Errorf("unexpected last event %+v", last)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	room := f.joinLobby(t, "7")
	creator := rooms.Actor{UserID: "7"}

	if _, err := f.manager.Rename(ctx, room.ChannelID, creator, "   "); !errors.Is(err, rooms.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}

	old, err := f.manager.Rename(ctx, room.ChannelID, creator, " игры ")
	if err != nil {
		t.Fatalf("failed to rename: %v", err)
	}
	if old != room.Name {
		t.Errorf("expected old name %q, got %q", room.Name, old)
	}
	if ch, _ := f.fake.Channel(room.ChannelID); ch.Name != "игры" {
		t.Errorf("channel not renamed: %q", ch.Name)
	}
	if got, _ := f.registry.Get(room.ChannelID); got.Name != "игры" {
		t.Errorf("registry not renamed: %q", got.Name)
	}
	if persisted, _ := f.store.Get(ctx, room.ChannelID); persisted.Name != "игры" {
		t.Errorf("store not renamed: %q", persisted.Name)
	}
}

func TestDeleteOccupiedRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)
	room := f.joinLobby(t, "7")

	if err := f.manager.Delete(ctx, room.ChannelID, rooms.Actor{UserID: "7"}); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, ok := f.fake.Channel(room.ChannelID); ok {
		t.Errorf("channel still exists")
	}
	if f.registry.IsTracked(room.ChannelID) {
		t.Errorf("room still tracked")
	}

	last := f.events.Events()[len(f.events.Events())-1]
	if last.Type != events.RoomDeleted || last.UserID != "7" {
		t.Errorf("unexpected last event %+v", last)
	}
}
