package voice

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnState is the controller's position in the turn-taking loop.
type TurnState string

const (
	StateIdle       TurnState = "idle"
	StateListening  TurnState = "listening"
	StateFinalizing TurnState = "finalizing"
	StateResponding TurnState = "responding"
)

// ResponseToken is the cancellation handle for one response pipeline run.
// Exactly one live token exists per session; invalidating it is how
// interruption, stop and natural completion all abandon in-flight work.
// Staleness checks compare token pointers, never a boolean flag.
type ResponseToken struct {
	turnID string
	ctx    context.Context
	cancel context.CancelFunc
}

func newResponseToken(parent context.Context, turnID string) *ResponseToken {
	ctx, cancel := context.WithCancel(parent)
	return &ResponseToken{turnID: turnID, ctx: ctx, cancel: cancel}
}

func (t *ResponseToken) TurnID() string           { return t.turnID }
func (t *ResponseToken) Context() context.Context { return t.ctx }
func (t *ResponseToken) Valid() bool              { return t.ctx.Err() == nil }
func (t *ResponseToken) Invalidate()              { t.cancel() }

// TurnController owns the turn-taking state machine for one session. It is
// the single point of truth for whether the agent is currently speaking, and
// it guarantees that at most one response pipeline emits audio at a time:
// a barge-in invalidates the live token and waits for the superseded pipeline
// to stop before the replacement starts.
type TurnController struct {
	base       context.Context
	transcript *Transcript
	pipeline   *ResponsePipeline
	events     EventSink

	mu           sync.Mutex
	state        TurnState
	token        *ResponseToken
	pipelineDone chan struct{}
}

func NewTurnController(base context.Context, transcript *Transcript, pipeline *ResponsePipeline, events EventSink) *TurnController {
	return &TurnController{
		base:       base,
		transcript: transcript,
		pipeline:   pipeline,
		events:     events,
		state:      StateIdle,
	}
}

// Start enables the listening path. No-op unless the controller is Idle.
func (c *TurnController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		c.state = StateListening
	}
}

// State reports the current turn state.
func (c *TurnController) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AgentSpeaking reports whether a pipeline is currently streaming audio.
func (c *TurnController) AgentSpeaking() bool {
	return c.State() == StateResponding
}

// CommitUserUtterance accepts a finalized user utterance from the silence
// watchdog. If a pipeline is still live (generating or speaking), this is a
// barge-in: the live token is invalidated and the superseded pipeline is
// waited out before the new one starts, so outbound streams never overlap.
// Returns false when the controller is Idle and the utterance was discarded.
func (c *TurnController) CommitUserUtterance(text string) bool {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return false
	}
	if c.token != nil {
		old, done := c.token, c.pipelineDone
		c.token, c.pipelineDone = nil, nil
		c.state = StateListening
		c.mu.Unlock()
		old.Invalidate()
		<-done
		c.mu.Lock()
		if c.state == StateIdle {
			c.mu.Unlock()
			return false
		}
	}

	u := Utterance{
		ID:        uuid.NewString(),
		Speaker:   SpeakerUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	c.transcript.Append(u)
	c.events.UserUtterance(u)

	token := newResponseToken(c.base, uuid.NewString())
	done := make(chan struct{})
	c.state = StateFinalizing
	c.token = token
	c.pipelineDone = done
	c.mu.Unlock()

	go c.runPipeline(token, done, u)
	return true
}

func (c *TurnController) runPipeline(token *ResponseToken, done chan struct{}, u Utterance) {
	defer close(done)

	reason := c.pipeline.Run(token, u, func() {
		// First audio chunk is about to go out: the agent is now speaking.
		c.mu.Lock()
		if c.token == token && c.state == StateFinalizing {
			c.state = StateResponding
		}
		c.mu.Unlock()
	})

	c.mu.Lock()
	if c.token == token {
		c.token = nil
		c.pipelineDone = nil
		if c.state == StateFinalizing || c.state == StateResponding {
			c.state = StateListening
		}
	}
	c.mu.Unlock()
	c.events.TurnEnded(token.TurnID(), reason)
}

// Interrupt abandons the in-flight response, if any, and returns to
// Listening. Used for explicit client interrupts; barge-in via a new
// utterance goes through CommitUserUtterance instead.
func (c *TurnController) Interrupt() {
	c.mu.Lock()
	old, done := c.token, c.pipelineDone
	c.token, c.pipelineDone = nil, nil
	if c.state == StateFinalizing || c.state == StateResponding {
		c.state = StateListening
	}
	c.mu.Unlock()
	if old != nil {
		old.Invalidate()
		<-done
	}
}

// Stop moves the controller to Idle from any state, invalidating the live
// token and waiting for the pipeline to wind down. Safe to call twice.
func (c *TurnController) Stop() {
	c.mu.Lock()
	old, done := c.token, c.pipelineDone
	c.token, c.pipelineDone = nil, nil
	c.state = StateIdle
	c.mu.Unlock()
	if old != nil {
		old.Invalidate()
		<-done
	}
}
