// Package logbuf is the per-task log pipeline: a bounded, ordered,
// best-effort persisted buffer of redacted lines with live subscribers.
package logbuf

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/agentstream"
	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

const (
	DefaultMaxLines        = 1000
	DefaultPersistCooldown = 5 * time.Second
	subscriberBacklog      = 256
)

// Persister stores result patches. Failures are never surfaced to callers
// of Append.
type Persister interface {
	PatchResult(ctx context.Context, taskID string, patch schemas.ResultPatch) error
}

type Line struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	At   time.Time `json:"at,omitzero"`
}

type Options struct {
	MaxLines        int
	PersistCooldown time.Duration
	// Decoder extracts session ids and usage in AppendRaw.
	Decoder agentstream.Decoder
	// OnSession is called once, with the first session id seen.
	OnSession func(ctx context.Context, sessionID string) error
	Logger    *slog.Logger
	Now       func() time.Time
}

type Pipeline struct {
	taskID string
	store  Persister
	opts   Options

	mu          sync.Mutex
	lines       []string
	seq         uint64
	usage       schemas.TokenUsage
	usageSeen   bool
	sessionID   string
	lastText    string
	subscribers map[int]chan Line
	nextSub     int
	closed      bool

	persistMu   sync.Mutex
	lastFailure time.Time
}

func New(taskID string, store Persister, opts Options) *Pipeline {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.PersistCooldown <= 0 {
		opts.PersistCooldown = DefaultPersistCooldown
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		taskID:      taskID,
		store:       store,
		opts:        opts,
		subscribers: map[int]chan Line{},
	}
}

func (p *Pipeline) TaskID() string {
	return p.taskID
}

// SetDecoder switches the structured-line decoder, e.g. once the provider
// is known.
func (p *Pipeline) SetDecoder(decoder agentstream.Decoder) {
	p.mu.Lock()
	p.opts.Decoder = decoder
	p.mu.Unlock()
}

// Append records a plain line.
func (p *Pipeline) Append(ctx context.Context, line string) {
	p.append(ctx, redact.String(line), false)
}

// AppendRaw records a provider output line and extracts its session id and
// usage delta when it is a recognised structured event.
func (p *Pipeline) AppendRaw(ctx context.Context, line string) {
	p.append(ctx, redact.String(line), true)
}

// Sink adapts the pipeline to a line callback that never fails.
func (p *Pipeline) Sink(ctx context.Context, raw bool) func(string) error {
	return func(line string) error {
		if raw {
			p.AppendRaw(ctx, line)
		} else {
			p.Append(ctx, line)
		}
		return nil
	}
}

func (p *Pipeline) append(ctx context.Context, line string, raw bool) {
	var event agentstream.Event
	p.mu.Lock()
	if raw && p.opts.Decoder != nil {
		event = p.opts.Decoder.Decode(line)
	}
	p.lines = append(p.lines, line)
	if overflow := len(p.lines) - p.opts.MaxLines; overflow > 0 {
		p.lines = append(p.lines[:0:0], p.lines[overflow:]...)
	}
	p.seq++
	published := Line{Seq: p.seq, Text: line, At: p.opts.Now()}
	for _, ch := range p.subscribers {
		select {
		case ch <- published:
		default:
		}
	}

	usageChanged := false
	if event.Usage != nil {
		p.usage.Add(event.Usage.InputTokens, event.Usage.OutputTokens)
		p.usageSeen = true
		usageChanged = true
	}
	if event.Text != "" {
		p.lastText = event.Text
	}
	newSession := ""
	if event.SessionID != "" && p.sessionID == "" {
		p.sessionID = event.SessionID
		newSession = event.SessionID
	}
	onSession := p.opts.OnSession
	p.mu.Unlock()

	if newSession != "" && onSession != nil {
		if err := onSession(ctx, newSession); err != nil {
			p.opts.Logger.Warn("failed to bind session", slog.String("taskId", p.taskID), slog.String("error", redact.Error(err)))
		}
	}
	p.persist(ctx, usageChanged)
}

func (p *Pipeline) persist(ctx context.Context, withUsage bool) {
	if p.store == nil {
		return
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	now := p.opts.Now()
	if !p.lastFailure.IsZero() && now.Sub(p.lastFailure) < p.opts.PersistCooldown {
		return
	}

	lines, seq := p.Snapshot()
	patch := schemas.ResultPatch{Logs: lines, LogsSeq: &seq}
	if withUsage {
		usage := p.Usage()
		patch.TokenUsage = &usage
	}
	if err := p.store.PatchResult(ctx, p.taskID, patch); err != nil {
		p.lastFailure = now
		p.opts.Logger.Warn("failed to persist task logs", slog.String("taskId", p.taskID), slog.String("error", redact.Error(err)))
		return
	}
	p.lastFailure = time.Time{}
}

// Flush persists the current logs, and the usage when any was seen,
// ignoring the failure cooldown. It is the last write of a run.
func (p *Pipeline) Flush(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	lines, seq := p.Snapshot()
	patch := schemas.ResultPatch{Logs: lines, LogsSeq: &seq}
	if p.UsageSeen() {
		usage := p.Usage()
		patch.TokenUsage = &usage
	}
	if err := p.store.PatchResult(ctx, p.taskID, patch); err != nil {
		p.lastFailure = p.opts.Now()
		return err
	}
	p.lastFailure = time.Time{}
	return nil
}

// Snapshot returns a copy of the buffered lines and the total append count.
func (p *Pipeline) Snapshot() ([]string, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...), p.seq
}

func (p *Pipeline) Usage() schemas.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// UsageSeen reports whether any usage event was accumulated.
func (p *Pipeline) UsageSeen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usageSeen
}

func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// LastText is the newest assistant text seen in structured output.
func (p *Pipeline) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastText
}

// Subscribe streams lines appended from now on. Slow subscribers miss
// lines rather than stall the producer; Seq gaps reveal the loss.
func (p *Pipeline) Subscribe() (<-chan Line, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Line, subscriberBacklog)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subscribers[id]; ok {
				delete(p.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
}
