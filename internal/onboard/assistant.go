package onboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/dispatch"
	"github.com/plura-ai/onboard/internal/gateway"
	"github.com/plura-ai/onboard/internal/logger"
	"github.com/plura-ai/onboard/internal/persist"
)

// Reply is the assistant's renderable answer for one user turn.
type Reply struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Display dispatch.Outcome `json:"display"`
}

// Identities resolves the signed-in user for greeting composition.
type Identities interface {
	GetSession(userID string) (*persist.Identity, error)
}

// Assistant runs the onboarding conversation: one user turn in, one
// renderable reply out, with history and stage bookkeeping in between.
type Assistant struct {
	sessions   *convo.Manager
	provider   gateway.Provider
	dispatcher *dispatch.Dispatcher
	ids        Identities
}

func NewAssistant(sessions *convo.Manager, provider gateway.Provider, dir dispatch.Directory, ids Identities) *Assistant {
	return &Assistant{
		sessions:   sessions,
		provider:   provider,
		dispatcher: dispatch.New(dir),
		ids:        ids,
	}
}

// Sessions exposes the session manager for lifecycle maintenance.
func (a *Assistant) Sessions() *convo.Manager { return a.sessions }

// SendMessage handles one user turn end to end. The user turn is
// appended to visible history before inference so the model always
// sees it; prose fragments are forwarded to onFragment as they arrive
// and the full reply is committed only once the stream ends cleanly.
// A cancelled or failed turn is rolled back so the prior committed
// history stays valid for retry.
func (a *Assistant) SendMessage(ctx context.Context, sessionID, userID, prompt string, onFragment func(string)) (Reply, error) {
	sess := a.sessions.Get(sessionID, userID)
	release := sess.Acquire()
	defer release()

	base := sess.Store.Get()
	withUser, err := sess.Store.Update(base, convo.UserTurn(prompt))
	if err != nil {
		return Reply{}, err
	}
	rollback := func() {
		if rerr := sess.Store.Restore(withUser, base); rerr != nil && !errors.Is(rerr, convo.ErrStaleHistory) {
			logger.Error("[Onboard] Rollback failed for session %s: %v", sessionID, rerr)
		}
	}

	greeting := a.greetingFor(userID)

	comp, err := a.provider.Complete(ctx, gateway.Request{History: withUser.Turns, Greeting: greeting})
	if err != nil {
		rollback()
		return Reply{}, fmt.Errorf("onboard: model call: %w", err)
	}

	if comp.ToolCall != nil {
		return a.handleToolCall(ctx, sess, withUser, *comp.ToolCall, rollback)
	}
	return a.handleStream(ctx, sess, withUser, comp.Stream, onFragment, rollback)
}

func (a *Assistant) greetingFor(userID string) string {
	ident, err := a.ids.GetSession(userID)
	if err != nil {
		logger.Warn("[Onboard] Identity lookup failed for user %s: %v", userID, err)
		return ""
	}
	if ident == nil {
		return ""
	}
	text, ok := Greeting(ident.Name, ident.Email)
	if !ok {
		return ""
	}
	return text
}

func (a *Assistant) handleToolCall(ctx context.Context, sess *convo.Session, base convo.History, call gateway.ToolCall, rollback func()) (Reply, error) {
	outcome, err := a.dispatcher.Dispatch(ctx, sess, base, call)
	if err != nil {
		var verr *gateway.ValidationError
		var perr *dispatch.PolicyViolationError
		if errors.As(err, &verr) || errors.As(err, &perr) {
			// Recoverable: the tool never ran. Record a diagnostic
			// turn so the transcript explains the refusal.
			text := fmt.Sprintf("I couldn't run that action (%v). Please try again.", err)
			if _, cerr := sess.Store.Commit(base, convo.AssistantTurn(text)); cerr != nil {
				rollback()
				return Reply{}, cerr
			}
			return a.reply(dispatch.TextOutcome(text)), nil
		}
		rollback()
		return Reply{}, err
	}

	if outcome.Kind == dispatch.KindComplete {
		a.sessions.Close(sess.ID)
	}
	return a.reply(outcome), nil
}

func (a *Assistant) handleStream(ctx context.Context, sess *convo.Session, base convo.History, stream *gateway.TextStream, onFragment func(string), rollback func()) (Reply, error) {
	for {
		frag, ok := stream.Recv()
		if !ok {
			break
		}
		if onFragment != nil {
			onFragment(frag)
		}
		if ctx.Err() != nil {
			rollback()
			return Reply{}, ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		rollback()
		return Reply{}, fmt.Errorf("onboard: reply stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		rollback()
		return Reply{}, err
	}

	text := stream.Text()
	if _, err := sess.Store.Commit(base, convo.AssistantTurn(text)); err != nil {
		rollback()
		return Reply{}, err
	}
	return a.reply(dispatch.TextOutcome(text)), nil
}

func (a *Assistant) reply(outcome dispatch.Outcome) Reply {
	return Reply{
		ID:      uuid.New().String(),
		Role:    "assistant",
		Display: outcome,
	}
}
