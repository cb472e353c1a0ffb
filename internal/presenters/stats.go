package presenters

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

func StatsEmbed(activeRooms, guilds int, latency time.Duration, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:     "📊 Bot Statistics",
		Color:     colorGreen,
		Timestamp: now.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Active Temporary Channels", Value: strconv.Itoa(activeRooms), Inline: true},
			{Name: "Guilds", Value: strconv.Itoa(guilds), Inline: true},
			{Name: "Latency", Value: fmt.Sprintf("%dms", latency.Round(time.Millisecond).Milliseconds()), Inline: true},
		},
	}
}

func CleanupText(cleaned int) string {
	return fmt.Sprintf("🧹 Cleaned up %d empty channels", cleaned)
}

const AdminOnlyText = "❌ This command requires the Administrator permission."
