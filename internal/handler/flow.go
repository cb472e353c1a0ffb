package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/voice-rooms/internal/generator"
	"github.com/glizzus/voice-rooms/internal/presenters"
)

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

type FlowContext struct {
	InstanceID string
	State      map[string]any
}

// HandlerFunc handles one step of a flow.
type HandlerFunc func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error

type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler HandlerFunc
	Next    []*Node
}

type Flow struct {
	ID   string
	Root *Node
}

type session struct {
	flow      *Flow
	node      *Node
	ctx       *FlowContext
	startedAt time.Time
}

// FlowManager routes interactions through multi-step flows. A flow starts
// when an interaction matches a registered root and, if the root has
// successors, is remembered under a fresh instance id until its last step
// runs, a step fails, or it is pruned.
type FlowManager struct {
	flowsMu *sync.RWMutex
	flows   []*Flow

	sessionsMu *sync.RWMutex
	sessions   map[string]*session

	idGenerator generator.Generator[string]
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		flowsMu:     &sync.RWMutex{},
		sessionsMu:  &sync.RWMutex{},
		sessions:    make(map[string]*session),
		idGenerator: idGenerator,
		now:         time.Now,
	}
}

// RegisterFlow adds flow. Roots are tried in registration order.
func (fm *FlowManager) RegisterFlow(flows ...*Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, flow := range flows {
		for _, existing := range fm.flows {
			if existing.ID == flow.ID {
				panic("flow already registered: " + flow.ID)
			}
		}
		fm.flows = append(fm.flows, flow)
	}
}

func (fm *FlowManager) Router(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	instanceID := InstanceIDFromInteraction(i)
	if instanceID != "" {
		fm.sessionsMu.RLock()
		session, inFlow := fm.sessions[instanceID]
		fm.sessionsMu.RUnlock()
		if inFlow {
			return fm.advance(ctx, s, i, session)
		}
	}

	started, err := fm.initializeFlow(ctx, s, i)
	if err != nil {
		return err
	}
	if !started && i.Type == discordgo.InteractionModalSubmit {
		// The modal outlived its flow, e.g. across a restart.
		return &UserError{Message: presenters.ExpiredText}
	}
	return nil
}

func (fm *FlowManager) finish(instanceID string) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, instanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(
	ctx context.Context,
	s DiscordSession,
	i *discordgo.InteractionCreate,
	sess *session,
) error {
	if len(sess.node.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
		return nil
	}

	var nextNode *Node
	for _, n := range sess.node.Next {
		if n.Matcher(i) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return nil
	}

	sess.node = nextNode
	err := nextNode.Handler(ctx, s, i, sess.ctx)
	if err != nil || len(nextNode.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
	}
	return err
}

func (fm *FlowManager) initializeFlow(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) (bool, error) {
	var f *Flow
	fm.flowsMu.RLock()
	for _, flow := range fm.flows {
		if flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return false, nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return true, fmt.Errorf("failed to generate instance ID: %w", err)
	}

	fc := &FlowContext{
		InstanceID: instanceID,
		State:      make(map[string]any),
	}

	// Single step flows are never advanced, so there is nothing to remember.
	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.sessions[instanceID] = &session{flow: f, node: f.Root, ctx: fc, startedAt: fm.now()}
		fm.sessionsMu.Unlock()
	}

	if err := f.Root.Handler(ctx, s, i, fc); err != nil {
		fm.finish(instanceID)
		return true, err
	}
	return true, nil
}

// Prune forgets flows started more than maxAge ago and reports how many.
func (fm *FlowManager) Prune(maxAge time.Duration) int {
	cutoff := fm.now().Add(-maxAge)

	fm.sessionsMu.Lock()
	defer fm.sessionsMu.Unlock()
	pruned := 0
	for id, sess := range fm.sessions {
		if sess.startedAt.Before(cutoff) {
			delete(fm.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Pending reports how many flows are waiting for their next step.
func (fm *FlowManager) Pending() int {
	fm.sessionsMu.RLock()
	defer fm.sessionsMu.RUnlock()
	return len(fm.sessions)
}
