package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/sclogin/internal/auth"
)

// Default limits of a sign-in flow.
const (
	DefaultFlowTTL         = 10 * time.Minute
	DefaultExchangeTimeout = 30 * time.Second
)

var (
	// ErrUnknownState is returned when a redirect carries a state this
	// exchanger did not issue or whose flow expired.
	ErrUnknownState = errors.New("unknown or expired state")
)

// flow is the outstanding sign-in of an Exchanger.
type flow struct {
	state    string
	verifier string
	cycleID  string
	created  time.Time
}

// Exchanger issues authorization URLs and exchanges the resulting
// authorization codes. At most one flow is outstanding; issuing a new URL
// forgets the previous one.
type Exchanger struct {
	cfg         oauth2.Config
	redirectURL *url.URL
	httpClient  *http.Client
	ttl         time.Duration
	timeout     time.Duration
	now         func() time.Time

	mu      sync.Mutex
	pending *flow
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets the client used for the token request.
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// WithFlowTTL sets how long an issued authorization URL stays redeemable.
func WithFlowTTL(ttl time.Duration) ExchangerOption {
	return func(e *Exchanger) {
		e.ttl = ttl
	}
}

// WithExchangeTimeout bounds a single token request.
func WithExchangeTimeout(timeout time.Duration) ExchangerOption {
	return func(e *Exchanger) {
		e.timeout = timeout
	}
}

// NewExchanger creates an Exchanger for cfg. The client secret of cfg is
// ignored; it is supplied per exchange.
func NewExchanger(cfg *oauth2.Config, opts ...ExchangerOption) (*Exchanger, error) {
	if cfg == nil {
		return nil, errors.New("missing oauth2 config")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id cannot be empty")
	}
	redirectURL, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	if redirectURL.Scheme == "" || redirectURL.Host == "" {
		return nil, fmt.Errorf("invalid redirect url %q: scheme and host required", cfg.RedirectURL)
	}

	e := &Exchanger{
		cfg:         *cfg,
		redirectURL: redirectURL,
		httpClient:  &http.Client{Timeout: DefaultExchangeTimeout},
		ttl:         DefaultFlowTTL,
		timeout:     DefaultExchangeTimeout,
		now:         time.Now,
	}
	e.cfg.ClientSecret = ""
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AuthCodeURL starts a flow for the given cycle and returns the URL the user
// has to visit.
func (e *Exchanger) AuthCodeURL(cycleID string) string {
	f := &flow{
		state:    uuid.NewString(),
		verifier: oauth2.GenerateVerifier(),
		cycleID:  cycleID,
		created:  e.now(),
	}

	e.mu.Lock()
	e.pending = f
	e.mu.Unlock()

	return e.cfg.AuthCodeURL(f.state, oauth2.S256ChallengeOption(f.verifier))
}

// Owns reports whether state belongs to the outstanding, unexpired flow.
func (e *Exchanger) Owns(state string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lookup(state) != nil
}

// MatchesRedirectURL reports whether u is a redirect to the configured
// redirect URL answering the outstanding flow.
func (e *Exchanger) MatchesRedirectURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, e.redirectURL.Scheme) ||
		!strings.EqualFold(u.Host, e.redirectURL.Host) ||
		u.Path != e.redirectURL.Path {
		return false
	}
	return e.Owns(u.Query().Get("state"))
}

// Reset forgets the outstanding flow.
func (e *Exchanger) Reset() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}

func (e *Exchanger) lookup(state string) *flow {
	f := e.pending
	if f == nil || state == "" || f.state != state {
		return nil
	}
	if e.ttl > 0 && e.now().Sub(f.created) > e.ttl {
		return nil
	}
	return f
}

// take removes and returns the outstanding flow if it matches state.
func (e *Exchanger) take(state string) *flow {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.lookup(state)
	if f != nil {
		e.pending = nil
	}
	return f
}

// Exchange redeems the redirect u. OAuth error redirects become
// ResponseError, redirects without a code ResponseOther.
func (e *Exchanger) Exchange(ctx context.Context, u *url.URL, clientSecret string) (*auth.Response, error) {
	if u == nil {
		return nil, errors.New("redirect without url")
	}
	query := u.Query()

	f := e.take(query.Get("state"))
	if f == nil {
		return nil, ErrUnknownState
	}

	if errCode := query.Get("error"); errCode != "" {
		return &auth.Response{
			Type:             auth.ResponseError,
			Error:            errCode,
			ErrorDescription: query.Get("error_description"),
		}, nil
	}

	code := query.Get("code")
	if code == "" {
		return &auth.Response{Type: auth.ResponseOther}, nil
	}

	cfg := e.cfg
	cfg.ClientSecret = clientSecret

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return &auth.Response{
		Type:        auth.ResponseToken,
		AccessToken: token.AccessToken,
		Token:       token,
	}, nil
}

// ExchangeAsync runs Exchange on a new goroutine and reports to fn.
func (e *Exchanger) ExchangeAsync(ctx context.Context, u *url.URL, clientSecret string, fn auth.ResponseFunc) {
	go func() {
		resp, err := e.Exchange(ctx, u, clientSecret)
		fn(resp, err)
	}()
}
