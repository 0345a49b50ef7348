package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fetchResult struct {
	body string
	err  error
}

// scriptedFetcher replays results in order and repeats the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	tokens  []string
	calls   chan string
}

func newScriptedFetcher(results ...fetchResult) *scriptedFetcher {
	return &scriptedFetcher{results: results, calls: make(chan string, 64)}
}

// noToken is recorded for requests sent without a pageToken.
const noToken = "<none>"

func tokenArg(pageToken *string) string {
	if pageToken == nil {
		return noToken
	}
	return *pageToken
}

func (f *scriptedFetcher) ChatMessages(ctx context.Context, liveChatID string, pageToken *string) ([]byte, error) {
	f.mu.Lock()
	i := len(f.tokens)
	tok := tokenArg(pageToken)
	f.tokens = append(f.tokens, tok)
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	r := f.results[i]
	f.mu.Unlock()
	f.calls <- tok
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func pageBody(token string, ms int, items ...string) string {
	body := `{"nextPageToken":"` + token + `","pollingIntervalMillis":` + strconv.Itoa(ms) + `,"items":[`
	for i, it := range items {
		if i > 0 {
			body += ","
		}
		body += it
	}
	return body + "]}"
}

type harness struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	fetcher *scriptedFetcher
	poller  *Poller
	batches chan []Message
	errs    chan error
	cancel  context.CancelFunc
	done    chan error
}

func startPoller(t *testing.T, f *scriptedFetcher) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   clockwork.NewFakeClock(),
		fetcher: f,
		batches: make(chan []Message, 16),
		errs:    make(chan error, 16),
		done:    make(chan error, 1),
	}
	emit := func(ctx context.Context, batch []Message) error {
		select {
		case h.batches <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.poller = NewPoller(f, "chat-1", emit,
		WithClock(h.clock),
		WithErrorHandler(func(err error) { h.errs <- err }))
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.poller.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// expectCall waits for the next fetch and returns its page token.
func (h *harness) expectCall() string {
	h.t.Helper()
	select {
	case tok := <-h.fetcher.calls:
		return tok
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for poll request")
		return ""
	}
}

// expectNoCall asserts nothing was fetched within a short grace period.
func (h *harness) expectNoCall() {
	h.t.Helper()
	select {
	case tok := <-h.fetcher.calls:
		h.t.Fatalf("unexpected poll request with token %q", tok)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitTimer blocks until the poller is parked on its interval timer.
func (h *harness) waitTimer() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		h.t.Fatalf("poller never waited on its timer: %v", err)
	}
}

func TestPollerCarriesTokenAndInterval(t *testing.T) {
	f := newScriptedFetcher(
		fetchResult{body: pageBody("t1", 1000,
			textItem("a", "Alice", "2026-01-01T00:00:00Z", "one"),
			textItem("b", "Bob", "2026-01-01T00:00:01Z", "two"))},
		fetchResult{body: pageBody("t2", 2000)},
		fetchResult{body: pageBody("t3", 2000, textItem("c", "Carol", "2026-01-01T00:00:02Z", "three"))},
	)
	h := startPoller(t, f)

	if tok := h.expectCall(); tok != noToken {
		t.Fatalf("first request token = %q, want none", tok)
	}
	batch := <-h.batches
	if len(batch) != 2 || batch[0].Content != "one" || batch[1].Content != "two" {
		t.Fatalf("first batch = %+v", batch)
	}

	h.waitTimer()
	h.clock.Advance(999 * time.Millisecond)
	h.expectNoCall()
	h.clock.Advance(time.Millisecond)
	if tok := h.expectCall(); tok != "t1" {
		t.Fatalf("second request token = %q, want t1", tok)
	}

	h.waitTimer()
	h.clock.Advance(2000 * time.Millisecond)
	if tok := h.expectCall(); tok != "t2" {
		t.Fatalf("third request token = %q, want t2", tok)
	}
	batch = <-h.batches
	if len(batch) != 1 || batch[0].DisplayName != "Carol" {
		t.Fatalf("third batch = %+v", batch)
	}

	select {
	case extra := <-h.batches:
		t.Fatalf("empty page produced a batch: %+v", extra)
	default:
	}

	h.waitTimer()
	st := h.poller.State()
	if st.NextPageToken != "t3" || st.PollInterval != 2*time.Second || !st.Running {
		t.Errorf("state = %+v", st)
	}
}

func TestPollerRetriesAtLastInterval(t *testing.T) {
	f := newScriptedFetcher(
		fetchResult{body: pageBody("t1", 1500)},
		fetchResult{err: errors.New("connection reset")},
		fetchResult{body: `{"pollingIntervalMillis":100}`},
		fetchResult{body: pageBody("t2", 800, textItem("a", "Alice", "2026-01-01T00:00:00Z", "back"))},
	)
	h := startPoller(t, f)
	h.expectCall()

	for i := 0; i < 2; i++ {
		h.waitTimer()
		h.clock.Advance(1499 * time.Millisecond)
		h.expectNoCall()
		h.clock.Advance(time.Millisecond)
		if tok := h.expectCall(); tok != "t1" {
			t.Fatalf("retry %d token = %q, want t1", i, tok)
		}
	}

	var reqErr *PollRequestError
	if err := <-h.errs; !errors.As(err, &reqErr) {
		t.Errorf("first reported error = %v, want *PollRequestError", err)
	}
	var parseErr *ResponseParseError
	if err := <-h.errs; !errors.As(err, &parseErr) {
		t.Errorf("second reported error = %v, want *ResponseParseError", err)
	}

	h.waitTimer()
	if st := h.poller.State(); st.ConsecutiveFailures != 2 || st.PollInterval != 1500*time.Millisecond {
		t.Errorf("state after failures = %+v", st)
	}
	h.clock.Advance(1500 * time.Millisecond)
	if tok := h.expectCall(); tok != "t1" {
		t.Fatalf("recovery token = %q, want t1", tok)
	}
	if batch := <-h.batches; len(batch) != 1 || batch[0].Content != "back" {
		t.Fatalf("recovery batch = %+v", batch)
	}
	h.waitTimer()
	if st := h.poller.State(); st.ConsecutiveFailures != 0 || st.NextPageToken != "t2" {
		t.Errorf("state after recovery = %+v", st)
	}
}

func TestPollerFirstFailureUsesDefaultInterval(t *testing.T) {
	f := newScriptedFetcher(
		fetchResult{err: errors.New("dns")},
		fetchResult{body: pageBody("t1", 1000)},
	)
	h := startPoller(t, f)
	h.expectCall()
	h.waitTimer()
	h.clock.Advance(DefaultPollInterval - time.Millisecond)
	h.expectNoCall()
	h.clock.Advance(time.Millisecond)
	if tok := h.expectCall(); tok != noToken {
		t.Fatalf("retry token = %q, want none", tok)
	}
}

func TestPollerSendsEmptyTokenBack(t *testing.T) {
	f := newScriptedFetcher(
		fetchResult{body: pageBody("", 1000)},
		fetchResult{body: pageBody("t2", 1000)},
	)
	h := startPoller(t, f)
	if tok := h.expectCall(); tok != noToken {
		t.Fatalf("first request token = %q, want none", tok)
	}
	h.waitTimer()
	if st := h.poller.State(); !st.HasPageToken || st.NextPageToken != "" {
		t.Fatalf("state after empty token = %+v", st)
	}
	h.clock.Advance(time.Second)
	if tok := h.expectCall(); tok != "" {
		t.Fatalf("second request token = %q, want empty token sent back", tok)
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	f := newScriptedFetcher(fetchResult{body: pageBody("t1", 60000)})
	h := startPoller(t, f)
	h.expectCall()
	h.waitTimer()

	h.cancel()
	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.poller.State().Running {
		t.Error("poller still reports running")
	}
}

type blockingFetcher struct {
	started chan struct{}
}

func (b *blockingFetcher) ChatMessages(ctx context.Context, liveChatID string, pageToken *string) ([]byte, error) {
	close(b.started)
	<-ctx.Done()
	return []byte(pageBody("late", 1000, textItem("x", "Late", "2026-01-01T00:00:00Z", "ignored"))), nil
}

func TestPollerAbandonsInFlightRequest(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{})}
	emitted := make(chan []Message, 1)
	p := NewPoller(bf, "chat-1", func(ctx context.Context, b []Message) error {
		emitted <- b
		return nil
	}, WithClock(clockwork.NewFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	<-bf.started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if len(emitted) != 0 {
		t.Error("completion of abandoned request was emitted")
	}
	if st := p.State(); st.HasPageToken || st.NextPageToken != "" {
		t.Errorf("abandoned response updated state: %+v", st)
	}
}
