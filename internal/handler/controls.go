package handler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/rooms"
	"github.com/glizzus/voice-rooms/internal/schedule"
	"github.com/glizzus/voice-rooms/internal/util"
)

const stateChannelID = "channelID"

// Controls answers the buttons and modals of room control panels.
type Controls struct {
	manager     *rooms.Manager
	deleteDelay time.Duration

	pending sync.WaitGroup
}

func NewControls(manager *rooms.Manager, deleteDelay time.Duration) *Controls {
	return &Controls{manager: manager, deleteDelay: deleteDelay}
}

// Flows returns the control panel flows to register with a FlowManager.
func (c *Controls) Flows() []*Flow {
	return []*Flow{
		c.privacyFlow(presenters.ComponentIDPrivate),
		c.privacyFlow(presenters.ComponentIDPublic),
		c.limitFlow(),
		c.renameFlow(),
		c.deleteFlow(),
	}
}

// Wait blocks until every scheduled deletion has run.
func (c *Controls) Wait() {
	c.pending.Wait()
}

func componentMatcher(componentID string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		return presenters.ComponentIDFromCustomID(i.MessageComponentData().CustomID) == componentID
	}
}

func modalMatcher(componentID string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionModalSubmit {
			return false
		}
		return presenters.ComponentIDFromCustomID(i.ModalSubmitData().CustomID) == componentID
	}
}

// panelChannelID is the room a control panel button belongs to.
func panelChannelID(i *discordgo.InteractionCreate) string {
	return InstanceIDFromCustomID(i.MessageComponentData().CustomID)
}

func actorOf(i *discordgo.InteractionCreate) rooms.Actor {
	return rooms.ActorFromMember(i.Member)
}

func respondEphemeral(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, presenters.Ephemeral(content))
}

func asTextInput(c discordgo.MessageComponent) (discordgo.TextInput, bool) {
	switch input := c.(type) {
	case *discordgo.TextInput:
		return *input, true
	case discordgo.TextInput:
		return input, true
	}
	return discordgo.TextInput{}, false
}

// TextInputValue returns what the user typed into the modal field inputID.
func TextInputValue(data discordgo.ModalSubmitInteractionData, inputID string) (string, bool) {
	var components []discordgo.MessageComponent
	for _, c := range data.Components {
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			components = append(components, row.Components...)
		case discordgo.ActionsRow:
			components = append(components, row.Components...)
		default:
			components = append(components, c)
		}
	}

	found, ok := util.FindFirst(components, func(c discordgo.MessageComponent) bool {
		input, ok := asTextInput(c)
		return ok && input.CustomID == inputID
	})
	if !ok {
		return "", false
	}
	input, _ := asTextInput(found)
	return input.Value, true
}

func (c *Controls) privacyFlow(componentID string) *Flow {
	return &Flow{
		ID: componentID,
		Root: &Node{
			ID:      componentID,
			Matcher: componentMatcher(componentID),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				channelID := panelChannelID(i)
				if componentID == presenters.ComponentIDPrivate {
					if err := c.manager.MakePrivate(ctx, channelID, actorOf(i)); err != nil {
						return err
					}
					return respondEphemeral(s, i, presenters.PrivateText)
				}
				if err := c.manager.MakePublic(ctx, channelID, actorOf(i)); err != nil {
					return err
				}
				return respondEphemeral(s, i, presenters.PublicText)
			},
		},
	}
}

func (c *Controls) limitFlow() *Flow {
	submit := &Node{
		ID:      presenters.ComponentIDLimitModal,
		Matcher: modalMatcher(presenters.ComponentIDLimitModal),
		Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
			raw, _ := TextInputValue(i.ModalSubmitData(), presenters.TextInputIDLimit)
			limit, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return &UserError{Message: presenters.NotANumberText}
			}
			channelID, _ := fc.State[stateChannelID].(string)
			if err := c.manager.SetLimit(ctx, channelID, actorOf(i), limit); err != nil {
				return err
			}
			return respondEphemeral(s, i, presenters.LimitText(limit))
		},
	}

	return &Flow{
		ID: presenters.ComponentIDLimit,
		Root: &Node{
			ID:      presenters.ComponentIDLimit,
			Matcher: componentMatcher(presenters.ComponentIDLimit),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				channelID := panelChannelID(i)
				if _, err := c.manager.Authorize(channelID, actorOf(i)); err != nil {
					return err
				}
				fc.State[stateChannelID] = channelID
				return s.InteractionRespond(i.Interaction, presenters.LimitModal(fc.InstanceID))
			},
			Next: []*Node{submit},
		},
	}
}

func (c *Controls) renameFlow() *Flow {
	submit := &Node{
		ID:      presenters.ComponentIDRenameModal,
		Matcher: modalMatcher(presenters.ComponentIDRenameModal),
		Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
			raw, _ := TextInputValue(i.ModalSubmitData(), presenters.TextInputIDName)
			channelID, _ := fc.State[stateChannelID].(string)
			oldName, err := c.manager.Rename(ctx, channelID, actorOf(i), raw)
			if err != nil {
				return err
			}
			return respondEphemeral(s, i, presenters.RenamedText(oldName, strings.TrimSpace(raw)))
		},
	}

	return &Flow{
		ID: presenters.ComponentIDRename,
		Root: &Node{
			ID:      presenters.ComponentIDRename,
			Matcher: componentMatcher(presenters.ComponentIDRename),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				channelID := panelChannelID(i)
				room, err := c.manager.Authorize(channelID, actorOf(i))
				if err != nil {
					return err
				}
				fc.State[stateChannelID] = channelID
				return s.InteractionRespond(i.Interaction, presenters.RenameModal(fc.InstanceID, room.Name))
			},
			Next: []*Node{submit},
		},
	}
}

func (c *Controls) deleteFlow() *Flow {
	return &Flow{
		ID: presenters.ComponentIDDelete,
		Root: &Node{
			ID:      presenters.ComponentIDDelete,
			Matcher: componentMatcher(presenters.ComponentIDDelete),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				channelID := panelChannelID(i)
				actor := actorOf(i)
				if _, err := c.manager.Authorize(channelID, actor); err != nil {
					return err
				}
				if err := respondEphemeral(s, i, presenters.DeleteScheduledText(c.deleteDelay)); err != nil {
					return err
				}

				c.pending.Add(1)
				schedule.RunAt(context.WithoutCancel(ctx), time.Now().Add(c.deleteDelay), func(ctx context.Context) {
					defer c.pending.Done()
					err := c.manager.Delete(ctx, channelID, actor)
					if err == nil {
						return
					}
					slog.Error("failed to delete room", "channelID", channelID, "error", err)
					_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
						Content: presenters.DeleteFailedText(err),
						Flags:   discordgo.MessageFlagsEphemeral,
					})
					if err != nil {
						slog.Warn("failed to report failed deletion", "channelID", channelID, "error", err)
					}
				})
				return nil
			},
		},
	}
}
