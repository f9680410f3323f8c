package transfer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/devlink/internal/observability"
	"github.com/danmuck/devlink/internal/transport"
)

// State is the controller lifecycle. Idle -> Active -> {Paused, Completed,
// Cancelled, Failed}; Paused -> Active or Cancelled. Terminal states discard
// the session; a controller runs one session over its lifetime.
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyInProgress = errors.New("transfer: session already in progress")
	ErrNotInProgress     = errors.New("transfer: no session in progress")
	ErrMTUTooSmall       = errors.New("transfer: negotiated mtu cannot fit a chunk")
	ErrBadChunk          = errors.New("transfer: malformed chunk response")
	ErrSeqMismatch       = errors.New("transfer: response sequence mismatch")
)

// session is one in-flight transfer. Mutated only by the chunk loop.
type session struct {
	resource   string
	offset     int64
	total      int64
	totalKnown bool
	buf        []byte // download: assembled bytes; upload: source data
	mtu        int
	seq        uint8
}

func (s *session) nextSeq() uint8 {
	v := s.seq
	s.seq++
	return v
}

// stepFn performs one chunk exchange at the session's current offset and
// advances the session on success.
type stepFn func(ctx context.Context, s *session) error

type controller struct {
	id   string
	kind string
	tr   transport.Transport
	cfg  Config
	lg   zerolog.Logger
	rng  *rand.Rand

	mu    sync.Mutex
	cond  *sync.Cond
	state State
	sess  *session

	events chan event
}

func (c *controller) init(tr transport.Transport, cfg Config, kind string) {
	c.id = uuid.NewString()
	c.kind = kind
	c.tr = tr
	c.cfg = cfg
	c.lg = log.With().Str("component", "transfer").Str("kind", kind).Str("session", c.id).Logger()
	c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	c.cond = sync.NewCond(&c.mu)
}

// ID is the session identifier carried in log events.
func (c *controller) ID() string { return c.id }

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// begin creates the session and launches the dispatcher and chunk loop.
// data is the upload source, nil for downloads.
func (c *controller) begin(ctx context.Context, resource string, data []byte, step stepFn, deliver func(event)) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	s := &session{
		resource: resource,
		buf:      data,
		mtu:      c.tr.MTU(),
	}
	if data != nil {
		s.total = int64(len(data))
		s.totalKnown = true
	}
	c.sess = s
	c.state = StateActive
	c.events = make(chan event, 32)
	c.mu.Unlock()

	// Opportunistic: a faster connection mode helps but is never required.
	if pr, ok := c.tr.(transport.ConnPriorityRequester); ok {
		if err := pr.RequestHighThroughput(); err != nil {
			c.lg.Debug().Err(err).Msg("high throughput request declined")
		}
	}

	c.lg.Info().Str("resource", resource).Int("mtu", s.mtu).Msg("transfer started")
	go c.dispatch(deliver)
	go c.loop(ctx, step)
	return nil
}

// Pause stops issuing new chunk requests once the in-flight one completes.
// Ignored unless the session is active.
func (c *controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ErrNotInProgress
	}
	if c.state == StateActive {
		c.state = StatePaused
		c.lg.Info().Msg("transfer paused")
	}
	return nil
}

// Resume continues the chunk loop from the last acknowledged offset.
// Ignored unless the session is paused.
func (c *controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ErrNotInProgress
	}
	if c.state == StatePaused {
		c.state = StateActive
		c.lg.Info().Msg("transfer resumed")
		c.cond.Broadcast()
	}
	return nil
}

// Cancel aborts an active or paused session. Idempotent; cancelling a
// terminal controller is a no-op.
func (c *controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateActive || c.state == StatePaused {
		c.state = StateCancelled
		c.lg.Info().Msg("transfer cancelled")
		c.cond.Broadcast()
	}
}

// loop is the single writer of session state. One chunk exchange is in
// flight at any time, which keeps offsets ordered without extra locking.
func (c *controller) loop(ctx context.Context, step stepFn) {
	for {
		c.mu.Lock()
		for c.state == StatePaused {
			c.cond.Wait()
		}
		if c.state == StateCancelled {
			c.mu.Unlock()
			c.finish(event{kind: eventCancelled})
			return
		}
		s := c.sess
		c.mu.Unlock()

		before := s.offset
		err := c.stepWithRetry(ctx, s, step)
		observability.RecordTransferBytes(c.kind, s.offset-before)

		// A cancel that raced the in-flight chunk wins over its outcome.
		c.mu.Lock()
		cancelled := c.state == StateCancelled
		c.mu.Unlock()
		if cancelled {
			c.finish(event{kind: eventCancelled})
			return
		}
		if err != nil {
			c.lg.Error().Err(err).Int64("offset", s.offset).Msg("transfer failed")
			c.finish(event{kind: eventFailed, err: err})
			return
		}

		c.emit(event{kind: eventProgress, current: s.offset, total: s.total, ts: time.Now()})
		if s.totalKnown && s.offset >= s.total {
			c.lg.Info().Int64("size", s.total).Msg("transfer completed")
			c.finish(event{kind: eventCompleted, data: s.buf})
			return
		}
	}
}

// stepWithRetry retries transient transport failures up to the configured
// ceiling. Everything else fails the chunk immediately: a peer that already
// rejected an operation will reject its replay too.
func (c *controller) stepWithRetry(ctx context.Context, s *session, step stepFn) error {
	attempt := 0
	for {
		c.mu.Lock()
		cancelled := c.state == StateCancelled
		c.mu.Unlock()
		if cancelled {
			return nil
		}
		err := step(ctx, s)
		if err == nil {
			return nil
		}
		if !transport.Transient(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		attempt++
		observability.RecordChunkRetry(c.kind)
		delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
		c.lg.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).
			Int64("offset", s.offset).Msg("chunk retry")
		time.Sleep(delay)
	}
}

// finish discards the session and emits the terminal event. Only the loop
// calls finish, so exactly one terminal event fires per session.
func (c *controller) finish(ev event) {
	var terminal State
	switch ev.kind {
	case eventCompleted:
		terminal = StateCompleted
	case eventCancelled:
		terminal = StateCancelled
	default:
		terminal = StateFailed
	}
	c.mu.Lock()
	c.sess = nil
	c.state = terminal
	c.mu.Unlock()
	observability.RecordTransferOutcome(c.kind, terminal.String())

	if ev.kind == eventCancelled || ev.kind == eventFailed {
		c.emit(event{kind: eventProgress, current: 0, total: 0, ts: time.Now()})
	}
	c.emit(ev)
	close(c.events)
}

func (c *controller) emit(ev event) {
	c.events <- ev
}

func (c *controller) dispatch(deliver func(event)) {
	for ev := range c.events {
		deliver(ev)
	}
}
