package rooms

import (
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	MaxUserLimit  = 99
	MaxNameLength = 100

	namePrefix = "🔊 "
)

// CreatorPermissions are granted to a room's creator on the room itself.
const CreatorPermissions = discordgo.PermissionManageChannels |
	discordgo.PermissionManageRoles |
	discordgo.PermissionVoiceMoveMembers

// DisplayName is what a member is called in the guild: nickname, then
// global name, then username.
func DisplayName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// ChannelName is the name of a freshly created room.
func ChannelName(displayName string) string {
	name := namePrefix + displayName
	return truncate(name, MaxNameLength)
}

// CreatorOverwrite lets the creator manage, re-permission and move members
// in their room.
func CreatorOverwrite(userID string) *discordgo.PermissionOverwrite {
	return &discordgo.PermissionOverwrite{
		ID:    userID,
		Type:  discordgo.PermissionOverwriteTypeMember,
		Allow: CreatorPermissions,
	}
}

// ValidateName trims name and checks Discord's channel name bounds.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func ValidateLimit(limit int) error {
	if limit < 0 || limit > MaxUserLimit {
		return ErrInvalidLimit
	}
	return nil
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}
