package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/csb6/purple-youtube/telemetry"
)

// DefaultPollInterval is used until the provider supplies one.
const DefaultPollInterval = 5000 * time.Millisecond

// Fetcher returns one raw liveChat/messages page. pageToken is nil on the
// first request of a session; otherwise it is the last nextPageToken verbatim,
// which may be empty.
type Fetcher interface {
	ChatMessages(ctx context.Context, liveChatID string, pageToken *string) ([]byte, error)
}

// EmitFunc receives each non-empty batch in arrival order. It returns an
// error only when ctx is done before the batch could be delivered.
type EmitFunc func(ctx context.Context, batch []Message) error

// PollState is a snapshot of the poller's continuation state.
type PollState struct {
	LiveChatID          string
	NextPageToken       string
	HasPageToken        bool
	PollInterval        time.Duration
	ConsecutiveFailures int
	LastSuccess         time.Time
	Running             bool
}

func (s PollState) pageToken() *string {
	if !s.HasPageToken {
		return nil
	}
	tok := s.NextPageToken
	return &tok
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock (tests use clockwork.NewFakeClock).
func WithClock(c clockwork.Clock) Option { return func(p *Poller) { p.clock = c } }

// WithInitialInterval sets the interval used before the first successful page.
func WithInitialInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.state.PollInterval = d
		}
	}
}

// WithErrorHandler receives failed cycles. The handler must not block.
func WithErrorHandler(fn func(error)) Option { return func(p *Poller) { p.report = fn } }

// Poller repeatedly fetches one live chat. Run is the only writer of the
// poll state; State may be called from any goroutine.
type Poller struct {
	fetcher Fetcher
	emit    EmitFunc
	report  func(error)
	clock   clockwork.Clock

	mu    sync.Mutex
	state PollState
}

// NewPoller creates a poller for liveChatID.
func NewPoller(f Fetcher, liveChatID string, emit EmitFunc, opts ...Option) *Poller {
	p := &Poller{
		fetcher: f,
		emit:    emit,
		report:  func(error) {},
		clock:   clockwork.NewRealClock(),
		state:   PollState{LiveChatID: liveChatID, PollInterval: DefaultPollInterval},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// State returns a copy of the current poll state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run polls until ctx is done and returns ctx's error. The first request goes
// out immediately; later ones wait the last known interval. Failed cycles are
// reported and retried at that same interval.
func (p *Poller) Run(ctx context.Context) error {
	p.setRunning(true)
	defer p.setRunning(false)

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat_poller"), slog.String("live_chat_id", p.State().LiveChatID))
	log.Info("polling started")
	for {
		if err := p.cycle(ctx, log); err != nil {
			log.Info("polling stopped")
			return err
		}
		timer := p.clock.NewTimer(p.State().PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("polling stopped")
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

// cycle runs one request/parse/emit round. A non-nil error means ctx is done.
func (p *Poller) cycle(ctx context.Context, log *slog.Logger) error {
	st := p.State()
	telemetry.RecordPollCycle()

	var (
		body []byte
		err  error
	)
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		body, err = p.fetcher.ChatMessages(ctx, st.LiveChatID, st.pageToken())
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		p.fail(log, "request", &PollRequestError{LiveChatID: st.LiveChatID, Err: err})
		return nil
	}

	page, err := ParseResponse(body)
	if err != nil {
		p.fail(log, "response", err)
		return nil
	}

	p.mu.Lock()
	p.state.NextPageToken = page.NextPageToken
	p.state.HasPageToken = true
	p.state.PollInterval = page.PollInterval
	p.state.ConsecutiveFailures = 0
	p.state.LastSuccess = p.clock.Now()
	p.mu.Unlock()
	telemetry.RecordPollSuccess(page.PollInterval)
	log.Debug("page received",
		slog.Int("messages", len(page.Messages)),
		slog.Int("dropped", page.Dropped),
		slog.Duration("interval", page.PollInterval))

	if len(page.Messages) == 0 {
		return nil
	}
	if err := p.emit(ctx, page.Messages); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("batch emit failed", slog.Any("err", err))
		return nil
	}
	telemetry.RecordBatch(len(page.Messages))
	return nil
}

func (p *Poller) fail(log *slog.Logger, kind string, err error) {
	p.mu.Lock()
	p.state.ConsecutiveFailures++
	n := p.state.ConsecutiveFailures
	interval := p.state.PollInterval
	p.mu.Unlock()

	telemetry.RecordPollFailure(kind, n)
	log.Warn("poll cycle failed; retrying",
		slog.String("kind", kind),
		slog.Int("consecutive", n),
		slog.Duration("retry_in", interval),
		slog.Any("err", err))
	p.report(err)
}

func (p *Poller) setRunning(v bool) {
	p.mu.Lock()
	p.state.Running = v
	p.mu.Unlock()
}

