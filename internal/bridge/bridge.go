// Package bridge hands requests from HTTP handler goroutines to a single
// background goroutine that owns the MCP connection and the agent. Jobs are
// queued on a channel and processed sequentially; each job streams its
// events back on its own channel.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/atlaschat/internal/agent"
	"github.com/smallnest/atlaschat/internal/history"
	"github.com/smallnest/atlaschat/internal/log"
	"github.com/smallnest/atlaschat/internal/mcp"
)

// ErrNotReady is returned when no agent is available: the loop has not
// connected yet, or the MCP connection is down and being rebuilt.
var ErrNotReady = errors.New("agent not ready")

// ErrStopped is returned once Stop has been called.
var ErrStopped = errors.New("bridge stopped")

// Runner executes one chat request. *agent.Agent satisfies it; tests
// substitute fakes.
type Runner interface {
	Run(ctx context.Context, input string, hist []history.Message, emit agent.EmitFunc) (string, error)
}

// Session is one live agent build: a runner plus the resources backing it.
type Session struct {
	Runner Runner
	Close  func() error
}

// BuildFunc connects the MCP transport and assembles the agent. It is
// retried with backoff until it succeeds.
type BuildFunc func(ctx context.Context) (*Session, error)

// Options configures a Bridge.
type Options struct {
	Build BuildFunc

	// ReadyTimeout bounds how long Start waits for the first successful
	// build.
	ReadyTimeout time.Duration
	// SubmitTimeout bounds how long Submit waits for the final answer.
	SubmitTimeout time.Duration
	// StreamTimeout bounds the silence between two streamed events.
	StreamTimeout time.Duration
	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration

	// QueueSize is the job queue capacity.
	QueueSize int

	// Backoff tuning for rebuild attempts.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffSleep   time.Duration

	Logger log.Logger
}

func (o *Options) fillDefaults() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 120 * time.Second
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 300 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 32
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.BackoffSleep <= 0 {
		o.BackoffSleep = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

type job struct {
	ctx    context.Context
	input  string
	hist   []history.Message
	events chan agent.Event

	// retried marks a job already re-run once after a reconnect.
	retried bool
}

// Bridge owns the agent loop goroutine and its job queue.
type Bridge struct {
	opts Options

	jobs chan *job

	ready   atomic.Bool
	readyCh chan struct{}
	readyMu sync.Once

	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	stopped atomic.Bool
}

// New creates a Bridge; call Start to launch the loop.
func New(opts Options) *Bridge {
	opts.fillDefaults()
	return &Bridge{
		opts:    opts,
		jobs:    make(chan *job, opts.QueueSize),
		readyCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the agent loop and blocks until the first build succeeds
// or the ready timeout expires. Calling Start again is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}
	go b.loop()

	select {
	case <-b.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.opts.ReadyTimeout):
		return fmt.Errorf("agent loop not ready after %s", b.opts.ReadyTimeout)
	}
}

// Stop signals the loop to exit and waits for it, bounded by StopTimeout.
func (b *Bridge) Stop() error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stopCh)
	if !b.started.Load() {
		return nil
	}
	select {
	case <-b.doneCh:
		return nil
	case <-time.After(b.opts.StopTimeout):
		return fmt.Errorf("agent loop did not stop within %s", b.opts.StopTimeout)
	}
}

// Ready reports whether a live agent is serving jobs.
func (b *Bridge) Ready() bool { return b.ready.Load() }

// Result is a Submit outcome.
type Result struct {
	Output    string
	ToolCalls []agent.Event
}

// Submit runs one request to completion and returns the final answer,
// waiting at most SubmitTimeout.
func (b *Bridge) Submit(ctx context.Context, input string, hist []history.Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.SubmitTimeout)
	defer cancel()

	events, err := b.Stream(ctx, input, hist)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for ev := range events {
		switch ev.Type {
		case agent.EventToolCall:
			res.ToolCalls = append(res.ToolCalls, ev)
		case agent.EventFinal:
			res.Output = ev.Output
			return res, nil
		case agent.EventError:
			return nil, errors.New(ev.Error)
		}
	}
	return nil, fmt.Errorf("event stream ended without a final answer")
}

// Stream enqueues a request and returns its event channel. The channel
// carries tool_call events as they happen and exactly one terminal event
// (final or error), then closes. Silence longer than StreamTimeout is
// converted into an error event.
func (b *Bridge) Stream(ctx context.Context, input string, hist []history.Message) (<-chan agent.Event, error) {
	if b.stopped.Load() {
		return nil, ErrStopped
	}
	if !b.ready.Load() {
		return nil, ErrNotReady
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		ctx:    jobCtx,
		input:  input,
		hist:   hist,
		events: make(chan agent.Event, 16),
	}

	select {
	case b.jobs <- j:
	case <-b.stopCh:
		cancel()
		return nil, ErrStopped
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	default:
		cancel()
		return nil, fmt.Errorf("job queue full")
	}

	out := make(chan agent.Event, 16)
	go b.forward(j, out, cancel)
	return out, nil
}

// forward relays job events to the caller, enforcing the stall timeout and
// cancelling the job when the caller goes away.
func (b *Bridge) forward(j *job, out chan<- agent.Event, cancel context.CancelFunc) {
	defer close(out)
	defer cancel()

	stall := time.NewTimer(b.opts.StreamTimeout)
	defer stall.Stop()

	for {
		select {
		case ev, ok := <-j.events:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-j.ctx.Done():
				return
			}
			if ev.IsTerminal() {
				return
			}
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(b.opts.StreamTimeout)
		case <-stall.C:
			select {
			case out <- agent.Event{
				Type:  agent.EventError,
				Error: fmt.Sprintf("no agent activity for %s", b.opts.StreamTimeout),
			}:
			case <-j.ctx.Done():
			}
			return
		case <-j.ctx.Done():
			return
		}
	}
}

// loop is the single goroutine owning the MCP session and the agent. It
// builds the agent, serves jobs until the transport dies, and rebuilds with
// exponential backoff.
func (b *Bridge) loop() {
	defer close(b.doneCh)
	logger := b.opts.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-b.stopCh
		cancel()
	}()

	backoff := b.opts.BackoffInitial
	for {
		select {
		case <-b.stopCh:
			b.drain()
			return
		default:
		}

		session, err := b.opts.Build(ctx)
		if err != nil {
			logger.Error("agent build failed: %v", err)
			sleep := backoff
			if sleep > b.opts.BackoffSleep {
				sleep = b.opts.BackoffSleep
			}
			backoff *= 2
			if backoff > b.opts.BackoffMax {
				backoff = b.opts.BackoffMax
			}
			select {
			case <-b.stopCh:
				b.drain()
				return
			case <-time.After(sleep):
			}
			continue
		}

		backoff = b.opts.BackoffInitial
		b.ready.Store(true)
		b.readyMu.Do(func() { close(b.readyCh) })
		logger.Info("agent ready, serving jobs")

		rebuild := b.serve(session)
		b.ready.Store(false)
		if cerr := session.Close(); cerr != nil {
			logger.Warn("closing agent session: %v", cerr)
		}
		if !rebuild {
			return
		}
		logger.Warn("MCP connection lost, rebuilding")
	}
}

// serve runs jobs against one session until stop (returns false) or a dead
// transport (returns true, meaning rebuild).
func (b *Bridge) serve(session *Session) (rebuild bool) {
	for {
		select {
		case <-b.stopCh:
			b.drain()
			return false
		case j := <-b.jobs:
			if dead := b.runJob(session, j); dead {
				return true
			}
		}
	}
}

// drain fails all queued jobs on shutdown.
func (b *Bridge) drain() {
	for {
		select {
		case j := <-b.jobs:
			b.emit(j, agent.Event{Type: agent.EventError, Error: ErrStopped.Error()})
			close(j.events)
		default:
			return
		}
	}
}

// runJob executes one job and reports whether the transport died.
func (b *Bridge) runJob(session *Session, j *job) (dead bool) {
	if err := j.ctx.Err(); err != nil {
		// Caller gave up while the job sat in the queue.
		close(j.events)
		return false
	}

	out, err := session.Runner.Run(j.ctx, j.input, j.hist, func(ev agent.Event) {
		b.emit(j, ev)
	})
	if err != nil {
		// A cancelled caller context looks like a dead transport to the
		// error classifier; only rebuild when the connection itself died.
		if j.ctx.Err() == nil && mcp.IsConnectionError(err) {
			if !j.retried {
				// Re-run once against the rebuilt connection.
				j.retried = true
				select {
				case b.jobs <- j:
					return true
				default:
				}
			}
			b.emit(j, agent.Event{Type: agent.EventError, Error: err.Error()})
			close(j.events)
			return true
		}
		b.emit(j, agent.Event{Type: agent.EventError, Error: err.Error()})
		close(j.events)
		return false
	}

	b.emit(j, agent.Event{Type: agent.EventFinal, Output: out})
	close(j.events)
	return false
}

// emit forwards an event to the job channel without ever blocking the loop
// on a stuck consumer.
func (b *Bridge) emit(j *job, ev agent.Event) {
	select {
	case j.events <- ev:
	case <-j.ctx.Done():
	}
}
