// Package oauth runs the OAuth2 authorization code flow with PKCE against a
// loopback redirect listener. A Flow owns at most one pending attempt and the
// token set it produced.
package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/csb6/purple-youtube/crypto"
	"github.com/csb6/purple-youtube/telemetry"
)

const (
	verifierLength = 64
	stateLength    = 32

	defaultExchangeTimeout = 30 * time.Second
	shutdownTimeout        = 5 * time.Second
)

// State is the position of a Flow in its authorization lifecycle.
type State int

const (
	Idle State = iota
	AwaitingRedirect
	ExchangingCode
	Authorized
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRedirect:
		return "awaiting_redirect"
	case ExchangingCode:
		return "exchanging_code"
	case Authorized:
		return "authorized"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// session is the per-attempt secret material. It is dropped as soon as the
// redirect arrives.
type session struct {
	verifier string
	state    string
	config   oauth2.Config
}

// Option configures a Flow.
type Option func(*Flow)

// WithExchangeTimeout bounds the code exchange request.
func WithExchangeTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.exchangeTimeout = d
		}
	}
}

// WithErrorHandler receives redirect and exchange failures. The handler runs
// on the listener goroutine and must not block.
func WithErrorHandler(fn func(error)) Option { return func(f *Flow) { f.report = fn } }

// Flow drives one user through authorization.
type Flow struct {
	base            *oauth2.Config
	listenAddr      string
	callbackPath    string
	exchangeTimeout time.Duration
	report          func(error)

	mu      sync.Mutex
	state   State
	session *session
	srv     *http.Server
	token   *oauth2.Token
	lastErr error
	done    chan struct{}
}

// NewFlow creates a Flow that listens on listenAddr and serves the redirect
// on callbackPath. A listenAddr with port 0 binds an ephemeral port and the
// redirect URL follows it.
func NewFlow(base *oauth2.Config, listenAddr, callbackPath string, opts ...Option) *Flow {
	f := &Flow{
		base:            base,
		listenAddr:      listenAddr,
		callbackPath:    callbackPath,
		exchangeTimeout: defaultExchangeTimeout,
		report:          func(error) {},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AuthURL starts an attempt and returns the URL the user must visit. The
// redirect listener is bound before the URL is returned.
func (f *Flow) AuthURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil || f.state == ExchangingCode {
		return "", ErrAlreadyInProgress
	}

	verifier, err := crypto.RandomString(verifierLength)
	if err != nil {
		return "", fmt.Errorf("pkce verifier: %w", err)
	}
	state, err := crypto.RandomString(stateLength)
	if err != nil {
		return "", fmt.Errorf("state token: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", f.listenAddr)
	if err != nil {
		return "", fmt.Errorf("bind redirect listener %s: %w", f.listenAddr, err)
	}

	sess := &session{verifier: verifier, state: state, config: *f.base}
	sess.config.RedirectURL = "http://" + f.redirectHost(ln.Addr()) + f.callbackPath

	mux := http.NewServeMux()
	mux.HandleFunc(f.callbackPath, f.handleRedirect)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	f.session = sess
	f.srv = srv
	f.state = AwaitingRedirect
	f.lastErr = nil
	f.done = make(chan struct{})

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("redirect listener stopped", slog.String("component", "oauth"), slog.Any("err", err))
		}
	}()
	slog.Info("awaiting oauth redirect", slog.String("component", "oauth"), slog.String("redirect_url", sess.config.RedirectURL))

	return sess.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier)), nil
}

func (f *Flow) redirectHost(bound net.Addr) string {
	if _, port, err := net.SplitHostPort(f.listenAddr); err == nil && port != "0" {
		return f.listenAddr
	}
	return bound.String()
}

func (f *Flow) handleRedirect(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	sess := f.session
	f.session = nil
	if sess == nil {
		f.mu.Unlock()
		writePage(w, http.StatusBadRequest, "No authorization in progress", "This sign-in link is no longer valid. Start again from the application.")
		return
	}

	q := r.URL.Query()
	var rejected error
	switch {
	case q.Get("error") != "":
		rejected = &RedirectError{Code: q.Get("error"), Description: q.Get("error_description")}
	case q.Get("code") == "":
		rejected = ErrMissingCode
	case q.Get("state") == "" || subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(sess.state)) != 1:
		rejected = ErrInvalidState
	}
	if rejected != nil {
		f.finishLocked(nil, rejected, "rejected")
		f.mu.Unlock()
		writePage(w, http.StatusBadRequest, "Authorization failed", rejected.Error())
		f.report(rejected)
		return
	}
	f.state = ExchangingCode
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), f.exchangeTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "oauth", "oauth.exchange")
	tok, err := sess.config.Exchange(ctx, q.Get("code"), oauth2.VerifierOption(sess.verifier))
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	span.End()

	f.mu.Lock()
	if err != nil {
		err = &TokenExchangeError{Err: err}
		f.finishLocked(nil, err, "exchange_failed")
	} else {
		f.finishLocked(tok, nil, "authorized")
	}
	f.mu.Unlock()

	if err != nil {
		writePage(w, http.StatusBadGateway, "Authorization failed", "The sign-in could not be completed. You can close this window and try again.")
		f.report(err)
		return
	}
	writePage(w, http.StatusOK, "Authorization complete", "You can close this window and return to the application.")
}

// finishLocked ends the current attempt. f.mu must be held.
func (f *Flow) finishLocked(tok *oauth2.Token, err error, outcome string) {
	telemetry.RecordAuth(outcome)
	if err != nil {
		f.state = Failed
		f.lastErr = err
		slog.Warn("oauth attempt failed", slog.String("component", "oauth"), slog.Any("err", err))
	} else {
		f.state = Authorized
		f.token = tok
		f.lastErr = nil
		slog.Info("oauth authorized", slog.String("component", "oauth"), slog.Time("expiry", tok.Expiry))
	}
	if f.done != nil {
		close(f.done)
	}
	if srv := f.srv; srv != nil {
		f.srv = nil
		go shutdown(srv)
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("redirect listener shutdown", slog.String("component", "oauth"), slog.Any("err", err))
	}
}

// Wait blocks until the current attempt finishes and returns its outcome.
func (f *Flow) Wait(ctx context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return nil, ErrNotStarted
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return f.token, nil
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsAuthorized reports whether a token set is held.
func (f *Flow) IsAuthorized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != nil
}

// Token returns the current token set.
func (f *Flow) Token() (*oauth2.Token, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == nil {
		return nil, false
	}
	return f.token, true
}

// TokenSource returns a source that refreshes the held token when it expires.
func (f *Flow) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	f.mu.Lock()
	tok := f.token
	f.mu.Unlock()
	if tok == nil {
		return nil, ErrNotAuthorized
	}
	return newRefreshLogger(f.base.TokenSource(ctx, tok), tok, f.storeToken), nil
}

func (f *Flow) storeToken(tok *oauth2.Token) {
	f.mu.Lock()
	f.token = tok
	f.mu.Unlock()
}

// Close abandons a pending attempt and releases the listener.
func (f *Flow) Close() error {
	f.mu.Lock()
	srv := f.srv
	f.srv = nil
	if f.session != nil {
		f.session = nil
		f.state = Failed
		f.lastErr = ErrClosed
		close(f.done)
	}
	f.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
