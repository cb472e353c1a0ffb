package presenters

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/repository"
)

// Component ids. Buttons carry the room's channel id after the colon,
// modals carry the flow instance id.
const (
	ComponentIDPrivate     = "room_private"
	ComponentIDPublic      = "room_public"
	ComponentIDLimit       = "room_limit"
	ComponentIDRename      = "room_rename"
	ComponentIDDelete      = "room_delete"
	ComponentIDLimitModal  = "room_limit_modal"
	ComponentIDRenameModal = "room_rename_modal"

	TextInputIDLimit = "room_limit_value"
	TextInputIDName  = "room_name_value"
)

const colorGreen = 0x00ff00

// CustomID joins a component id and its argument.
func CustomID(componentID, arg string) string {
	return componentID + ":" + arg
}

// ComponentIDFromCustomID returns the component id part of a custom id.
func ComponentIDFromCustomID(customID string) string {
	componentID, _, _ := strings.Cut(customID, ":")
	return componentID
}

func ControlButtons(channelID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "🔒 Приватный",
				Style:    discordgo.SecondaryButton,
				CustomID: CustomID(ComponentIDPrivate, channelID),
			},
			discordgo.Button{
				Label:    "🔓 Открытый",
				Style:    discordgo.SecondaryButton,
				CustomID: CustomID(ComponentIDPublic, channelID),
			},
			discordgo.Button{
				Label:    "👥 Лимит пользователей",
				Style:    discordgo.PrimaryButton,
				CustomID: CustomID(ComponentIDLimit, channelID),
			},
			discordgo.Button{
				Label:    "📝 Переименовать",
				Style:    discordgo.PrimaryButton,
				CustomID: CustomID(ComponentIDRename, channelID),
			},
			discordgo.Button{
				Label:    "🚫 Удалить канал",
				Style:    discordgo.DangerButton,
				CustomID: CustomID(ComponentIDDelete, channelID),
			},
		},
	}
}

func controlPanelEmbed(room repository.Room) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎤 Управление голосовым каналом",
		Description: fmt.Sprintf("Канал: **%s**\nСоздатель: <@%s>", room.Name, room.CreatorID),
		Color:       colorGreen,
		Timestamp:   room.CreatedAt.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "📋 Доступные действия:",
				Value: "🔒 **Приватный** - сделать канал приватным\n" +
					"🔓 **Открытый** - сделать канал открытым\n" +
					"👥 **Лимит** - установить лимит пользователей\n" +
					"📝 **Переименовать** - изменить название\n" +
					"🚫 **Удалить** - удалить канал",
				Inline: false,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Кнопки доступны только создателю канала и администраторам",
		},
	}
}

// ControlPanel is the message posted in a new room's text chat.
// It is sent silently and mentions nobody.
func ControlPanel(room repository.Room) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{controlPanelEmbed(room)},
		Components: []discordgo.MessageComponent{
			ControlButtons(room.ChannelID),
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
		Flags: discordgo.MessageFlagsSuppressNotifications,
	}
}

func LimitModal(instanceID string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: CustomID(ComponentIDLimitModal, instanceID),
			Title:    "Установить лимит пользователей",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    TextInputIDLimit,
							Label:       "Количество пользователей (0 = без ограничений)",
							Style:       discordgo.TextInputShort,
							Placeholder: "Введите число от 0 до 99",
							Value:       "0",
							Required:    true,
							MaxLength:   2,
						},
					},
				},
			},
		},
	}
}

func RenameModal(instanceID, currentName string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: CustomID(ComponentIDRenameModal, instanceID),
			Title:    "Переименовать канал",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    TextInputIDName,
							Label:       "Новое название канала",
							Style:       discordgo.TextInputShort,
							Placeholder: "Введите новое название",
							Value:       currentName,
							Required:    true,
							MaxLength:   100,
						},
					},
				},
			},
		},
	}
}

// Ephemeral is a reply only the invoking user sees.
func Ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func ErrorText(err error) string {
	return "❌ Ошибка: " + err.Error()
}

const (
	NotAllowedText   = "❌ Только создатель канала или администратор может использовать эти кнопки!"
	NotTrackedText   = "❌ Этот канал больше не управляется ботом."
	InvalidLimitText = "❌ Лимит должен быть от 0 до 99!"
	NotANumberText   = "❌ Введите корректное число!"
	InvalidNameText  = "❌ Название должно быть от 1 до 100 символов!"
	PrivateText      = "🔒 Канал сделан приватным!"
	PublicText       = "🔓 Канал сделан открытым!"
	ExpiredText      = "⌛ Время ожидания истекло, нажмите кнопку еще раз."
)

func LimitText(limit int) string {
	if limit == 0 {
		return "👥 Лимит установлен: без ограничений"
	}
	return fmt.Sprintf("👥 Лимит установлен: %d пользователей", limit)
}

func RenamedText(oldName, newName string) string {
	return fmt.Sprintf("📝 Канал переименован: '%s' → '%s'", oldName, newName)
}

func DeleteScheduledText(delay time.Duration) string {
	return fmt.Sprintf("🗑️ Канал будет удален через %d секунды...", int(delay.Round(time.Second)/time.Second))
}

func DeleteFailedText(err error) string {
	return "❌ Ошибка при удалении: " + err.Error()
}
