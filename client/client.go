// Package client ties the authorization flow, stream resolver and chat poller
// together behind one handle. Batches and out-of-band errors are delivered on
// channels owned by the Client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/config"
	"github.com/csb6/purple-youtube/oauth"
	"github.com/csb6/purple-youtube/telemetry"
	"github.com/csb6/purple-youtube/youtubeapi"
)

const (
	defaultBuffer   = 64
	shutdownTimeout = 5 * time.Second
)

var (
	ErrOAuthDisabled    = errors.New("client: oauth is not configured")
	ErrNotAuthorized    = errors.New("client: authorization required before connecting")
	ErrAlreadyConnected = errors.New("client: already connected")
	ErrClosed           = errors.New("client: closed")
)

// ConnState is the lifecycle of the chat connection.
type ConnState int

const (
	Idle ConnState = iota
	Connecting
	Polling
	Stopped
)

func (s ConnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("conn_state(%d)", int(s))
}

// Status is a point-in-time view of the client.
type Status struct {
	Instance   string
	Mode       config.AuthMode
	State      ConnState
	Authorized bool
	AuthState  string
	Stream     *youtubeapi.StreamInfo
	Poll       *chat.PollState
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used by pollers.
func WithClock(c clockwork.Clock) Option { return func(cl *Client) { cl.clock = c } }

// WithOAuthConfig replaces the Google oauth2 config derived from Config.
func WithOAuthConfig(oc *oauth2.Config) Option { return func(cl *Client) { cl.oauthCfg = oc } }

// WithVersion sets the service version reported in traces.
func WithVersion(v string) Option { return func(cl *Client) { cl.version = v } }

// WithBufferSize sets the capacity of the Messages and Errors channels.
func WithBufferSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.buffer = n
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg      *config.Config
	instance string
	version  string
	mode     config.AuthMode
	flow     *oauth.Flow
	oauthCfg *oauth2.Config
	clock    clockwork.Clock
	buffer   int
	tracing  *telemetry.Tracing

	messages chan []chat.Message
	errs     chan error
	chMu     sync.RWMutex
	chClosed bool

	mu     sync.Mutex
	state  ConnState
	closed bool
	stream *youtubeapi.StreamInfo
	poller *chat.Poller
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and builds a Client. OAuth mode creates the
// authorization flow. Tracing is installed when cfg names an OTLP endpoint
// and is flushed by Close.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	c := &Client{
		cfg:      cfg,
		instance: uuid.NewString(),
		version:  "dev",
		mode:     cfg.Mode(),
		clock:    clockwork.NewRealClock(),
		buffer:   defaultBuffer,
	}
	for _, o := range opts {
		o(c)
	}
	tracing, err := telemetry.InitTracing(context.Background(), telemetry.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Version:     c.version,
		InstanceID:  c.instance,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("client tracing: %w", err)
	}
	c.tracing = tracing
	c.messages = make(chan []chat.Message, c.buffer)
	c.errs = make(chan error, c.buffer)

	if c.mode == config.AuthOAuth {
		oc := c.oauthCfg
		if oc == nil {
			oc = oauth.GoogleConfig(cfg)
		}
		c.flow = oauth.NewFlow(oc, cfg.RedirectAddr, cfg.RedirectPath,
			oauth.WithExchangeTimeout(cfg.ExchangeTimeout),
			oauth.WithErrorHandler(c.report))
	}
	return c, nil
}

// Messages delivers validated batches in arrival order.
func (c *Client) Messages() <-chan []chat.Message { return c.messages }

// Errors delivers failures that happen after Connect returned.
func (c *Client) Errors() <-chan error { return c.errs }

// AuthURL starts an authorization attempt.
func (c *Client) AuthURL(ctx context.Context) (string, error) {
	if c.flow == nil {
		return "", ErrOAuthDisabled
	}
	return c.flow.AuthURL(ctx)
}

// WaitAuthorized blocks until the pending authorization attempt finishes.
// It returns nil immediately in API-key mode.
func (c *Client) WaitAuthorized(ctx context.Context) error {
	if c.flow == nil {
		return nil
	}
	_, err := c.flow.Wait(ctx)
	return err
}

// Connect resolves streamURL and starts polling its live chat.
func (c *Client) Connect(ctx context.Context, streamURL string) (youtubeapi.StreamInfo, error) {
	videoID, err := youtubeapi.ExtractVideoID(streamURL)
	if err != nil {
		return youtubeapi.StreamInfo{}, err
	}
	svc, prev, err := c.begin(ctx)
	if err != nil {
		return youtubeapi.StreamInfo{}, err
	}
	info, err := svc.StreamInfo(ctx, videoID)
	if err != nil {
		c.abort(prev)
		return youtubeapi.StreamInfo{}, err
	}
	return info, c.start(svc, info, prev)
}

// ConnectChannel finds the newest live broadcast of a channel handle and
// connects to it.
func (c *Client) ConnectChannel(ctx context.Context, handle string) (youtubeapi.StreamInfo, error) {
	svc, prev, err := c.begin(ctx)
	if err != nil {
		return youtubeapi.StreamInfo{}, err
	}
	info, err := resolveChannel(ctx, svc, handle)
	if err != nil {
		c.abort(prev)
		return youtubeapi.StreamInfo{}, err
	}
	return info, c.start(svc, info, prev)
}

func resolveChannel(ctx context.Context, svc *youtubeapi.Service, handle string) (youtubeapi.StreamInfo, error) {
	channelID, err := svc.ChannelID(ctx, handle)
	if err != nil {
		return youtubeapi.StreamInfo{}, err
	}
	ids, err := svc.LiveStreams(ctx, channelID)
	if err != nil {
		return youtubeapi.StreamInfo{}, err
	}
	if len(ids) == 0 {
		return youtubeapi.StreamInfo{}, fmt.Errorf("%w: channel %s is not live", youtubeapi.ErrStreamNotFound, handle)
	}
	if len(ids) > 1 {
		slog.Info("channel has several live streams; using newest", slog.String("component", "client"), slog.String("video_id", ids[0]), slog.Int("live", len(ids)))
	}
	return svc.StreamInfo(ctx, ids[0])
}

// begin moves to Connecting and returns an authenticated service.
func (c *Client) begin(ctx context.Context) (*youtubeapi.Service, ConnState, error) {
	c.mu.Lock()
	prev := c.state
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, prev, ErrClosed
	case prev == Connecting || prev == Polling:
		c.mu.Unlock()
		return nil, prev, ErrAlreadyConnected
	case c.flow != nil && !c.flow.IsAuthorized():
		c.mu.Unlock()
		return nil, prev, ErrNotAuthorized
	}
	c.state = Connecting
	c.mu.Unlock()

	httpClient, err := c.httpClient(ctx)
	if err == nil {
		var svc *youtubeapi.Service
		if svc, err = youtubeapi.New(ctx, httpClient, c.cfg.APIBaseURL); err == nil {
			return svc, prev, nil
		}
	}
	c.abort(prev)
	return nil, prev, err
}

func (c *Client) abort(prev ConnState) {
	c.mu.Lock()
	if c.state == Connecting {
		c.state = prev
	}
	c.mu.Unlock()
}

func (c *Client) httpClient(ctx context.Context) (*http.Client, error) {
	if c.flow == nil {
		return youtubeapi.NewAPIKeyClient(c.cfg.APIKey), nil
	}
	ts, err := c.flow.TokenSource(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: &oauth2.Transport{Source: ts}}, nil
}

// start launches the poller goroutine for info.
func (c *Client) start(svc *youtubeapi.Service, info youtubeapi.StreamInfo, prev ConnState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.state = prev
		return ErrClosed
	}
	session := uuid.NewString()
	ctx, cancel := context.WithCancel(telemetry.WithCorrelation(context.Background(), session))
	p := chat.NewPoller(svc, info.LiveChatID, c.emit,
		chat.WithClock(c.clock),
		chat.WithInitialInterval(c.cfg.DefaultPollInterval),
		chat.WithErrorHandler(c.report))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	c.stream = &info
	c.poller = p
	c.cancel = cancel
	c.done = done
	c.state = Polling
	slog.Info("connected to live chat",
		slog.String("component", "client"),
		slog.String("instance", c.instance),
		slog.String("session", session),
		slog.String("video_id", info.VideoID),
		slog.String("title", info.Title))
	return nil
}

// emit blocks until the batch is queued or the poller is cancelled.
func (c *Client) emit(ctx context.Context, batch []chat.Message) error {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	if c.chClosed {
		return ErrClosed
	}
	select {
	case c.messages <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) report(err error) {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	if c.chClosed {
		return
	}
	select {
	case c.errs <- err:
	default:
		slog.Warn("error channel full; dropping error", slog.String("component", "client"), slog.Any("err", err))
	}
}

// Stop cancels polling and waits for the poller to exit. Connect may be
// called again afterwards.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.mu.Lock()
	c.state = Stopped
	c.stream = nil
	c.poller = nil
	c.mu.Unlock()
	slog.Info("chat polling stopped", slog.String("component", "client"))
}

// Close stops polling, releases the redirect listener, flushes traces and
// closes the Messages and Errors channels.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	var flowErr error
	if c.flow != nil {
		flowErr = c.flow.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := errors.Join(flowErr, c.tracing.Shutdown(ctx))

	c.chMu.Lock()
	c.chClosed = true
	close(c.messages)
	close(c.errs)
	c.chMu.Unlock()
	return err
}

// Status reports mode, connection state and poll progress.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{Instance: c.instance, Mode: c.mode, State: c.state}
	if c.stream != nil {
		info := *c.stream
		st.Stream = &info
	}
	p := c.poller
	c.mu.Unlock()

	if p != nil {
		ps := p.State()
		st.Poll = &ps
	}
	if c.flow != nil {
		st.Authorized = c.flow.IsAuthorized()
		st.AuthState = c.flow.State().String()
	}
	return st
}
