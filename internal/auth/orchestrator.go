package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/florianilch/sclogin/internal/auth"

// DefaultTokenKey is the store key the access token is saved under.
const DefaultTokenKey = "access_token"

// State is the position of a cycle in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateLaunched
	StateResolving
	StateSaving
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunched:
		return "launched"
	case StateResolving:
		return "resolving"
	case StateSaving:
		return "saving"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// cycle is one Launch through its resolution. Its span stays open until the
// cycle reaches a terminal state.
type cycle struct {
	id       string
	strategy *Strategy
	state    atomic.Int32
	span     trace.Span
}

func newCycle(ctx context.Context, tracer trace.Tracer, strategy *Strategy) (context.Context, *cycle) {
	c := &cycle{
		id:       uuid.NewString(),
		strategy: strategy,
	}

	kinds := make([]string, 0, len(strategy.Kinds()))
	for _, k := range strategy.Kinds() {
		kinds = append(kinds, string(k))
	}
	ctx, c.span = tracer.Start(ctx, "authenticate", trace.WithAttributes(
		attribute.String("auth.cycle", c.id),
		attribute.StringSlice("auth.transports", kinds),
	))

	c.state.Store(int32(StateLaunched))
	return ctx, c
}

func (c *cycle) State() State {
	return State(c.state.Load())
}

func (c *cycle) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// finish moves the cycle from one state into the terminal state to.
func (c *cycle) finish(from, to State, err error) bool {
	if !c.transition(from, to) {
		return false
	}
	c.end(to, err)
	return true
}

// terminate moves the cycle to the terminal state to unless it already ended.
// A cycle that is saving its token cannot be terminated; it ends once the
// save returns.
func (c *cycle) terminate(to State, err error) bool {
	for {
		s := c.State()
		if s == StateSucceeded || s == StateFailed || s == StateSaving {
			return false
		}
		if c.transition(s, to) {
			c.end(to, err)
			return true
		}
	}
}

func (c *cycle) end(to State, err error) {
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.SetAttributes(attribute.String("auth.state", to.String()))
	c.span.End()
}

type registration struct {
	transport Transport
	prepared  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNetworkChecker sets the reachability check run before launching.
func WithNetworkChecker(checker NetworkChecker) Option {
	return func(o *Orchestrator) {
		o.checker = checker
	}
}

// WithNetworkCheck enables or disables the reachability precheck. Enabled by default.
func WithNetworkCheck(enabled bool) Option {
	return func(o *Orchestrator) {
		o.checkNetwork = enabled
	}
}

// WithFailureHandler sets the function every cycle failure is reported to.
func WithFailureHandler(fn FailureFunc) Option {
	return func(o *Orchestrator) {
		o.onFailure = fn
	}
}

// WithAvailabilityObserver adds an observer notified on every Register.
func WithAvailabilityObserver(fn AvailabilityFunc) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// WithTracerProvider sets the provider cycle spans are started from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// WithTokenKey overrides the key the access token is saved under.
func WithTokenKey(key string) Option {
	return func(o *Orchestrator) {
		o.tokenKey = key
	}
}

// WithRefreshTokenKey also saves the refresh token, when the server issued
// one, under the given key.
func WithRefreshTokenKey(key string) Option {
	return func(o *Orchestrator) {
		o.refreshTokenKey = key
	}
}

// Orchestrator drives sign-in cycles over a set of registered transports.
type Orchestrator struct {
	clientSecret    string
	store           TokenStore
	navigator       Navigator
	checker         NetworkChecker
	checkNetwork    bool
	tokenKey        string
	refreshTokenKey string
	tracer          trace.Tracer

	mu         sync.Mutex
	registered []registration
	selected   map[Kind]bool
	onFailure  FailureFunc
	observers  []AvailabilityFunc
	closed     bool

	current atomic.Pointer[cycle]
}

// New creates an Orchestrator saving tokens to store and moving on through navigator.
// clientSecret is handed to transports when exchanging redirects.
func New(clientSecret string, store TokenStore, navigator Navigator, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("missing token store")
	}
	if navigator == nil {
		return nil, errors.New("missing navigator")
	}

	o := &Orchestrator{
		clientSecret: clientSecret,
		store:        store,
		navigator:    navigator,
		checkNetwork: true,
		tokenKey:     DefaultTokenKey,
		tracer:       otel.Tracer(tracerName),
		selected:     make(map[Kind]bool),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.tokenKey == "" {
		return nil, errors.New("token key cannot be empty")
	}

	return o, nil
}

// Register records a transport and whether it prepared successfully.
// Registering a kind again replaces the earlier registration but keeps its
// position. An unprepared transport is removed from the selection.
func (o *Orchestrator) Register(t Transport, prepared bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		slog.Warn("ignoring registration after teardown", "transport", t.Kind())
		return
	}

	kind := t.Kind()
	replaced := false
	for i := range o.registered {
		if o.registered[i].transport.Kind() == kind {
			o.registered[i] = registration{transport: t, prepared: prepared}
			replaced = true
			break
		}
	}
	if !replaced {
		o.registered = append(o.registered, registration{transport: t, prepared: prepared})
	}
	if !prepared {
		delete(o.selected, kind)
	}
	observers := append([]AvailabilityFunc(nil), o.observers...)
	o.mu.Unlock()

	if prepared {
		slog.Debug("transport available", "transport", kind)
	} else {
		slog.Info("transport unavailable", "transport", kind, "error", ErrTransportUnavailable)
	}

	for _, fn := range observers {
		fn(kind, prepared)
	}
}

// Toggle flips whether the transport of the given kind is selected and
// returns the new membership.
func (o *Orchestrator) Toggle(kind Kind) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	reg, ok := o.lookup(kind)
	if !ok || !reg.prepared {
		return false, fmt.Errorf("%w: %s", ErrTransportUnavailable, kind)
	}

	if o.selected[kind] {
		delete(o.selected, kind)
		return false, nil
	}
	o.selected[kind] = true
	return true, nil
}

// Selected returns the selected kinds in registration order.
func (o *Orchestrator) Selected() []Kind {
	o.mu.Lock()
	defer o.mu.Unlock()

	var kinds []Kind
	for _, r := range o.registered {
		if o.selected[r.transport.Kind()] {
			kinds = append(kinds, r.transport.Kind())
		}
	}
	return kinds
}

// Available reports whether the transport of the given kind can be selected.
func (o *Orchestrator) Available(kind Kind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	reg, ok := o.lookup(kind)
	return ok && reg.prepared
}

func (o *Orchestrator) lookup(kind Kind) (registration, bool) {
	for _, r := range o.registered {
		if r.transport.Kind() == kind {
			return r, true
		}
	}
	return registration{}, false
}

// Status returns the id and state of the latest cycle.
func (o *Orchestrator) Status() (string, State) {
	c := o.current.Load()
	if c == nil {
		return "", StateIdle
	}
	return c.id, c.State()
}

// Launch starts a new cycle, abandoning the previous one. The strategy is
// built from the selection in registration order. Results are reported
// asynchronously through the failure handler and the navigator.
func (o *Orchestrator) Launch(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		slog.WarnContext(ctx, "ignoring launch after teardown")
		return
	}
	var transports []Transport
	for _, r := range o.registered {
		if r.prepared && o.selected[r.transport.Kind()] {
			transports = append(transports, r.transport)
		}
	}
	ctx, c := newCycle(ctx, o.tracer, NewStrategy(transports, o.checkNetwork))
	prev := o.current.Swap(c)
	o.mu.Unlock()

	if prev != nil && prev.terminate(StateFailed, nil) {
		slog.InfoContext(ctx, "superseding unresolved authentication", "cycle", prev.id)
	}

	slog.InfoContext(ctx, "launching authentication", "cycle", c.id, "transports", c.strategy.Kinds())

	t, err := c.strategy.Authenticate(ctx, o.checker, LaunchRequest{CycleID: c.id})
	if err != nil {
		o.fail(ctx, c, err)
		return
	}

	slog.InfoContext(ctx, "authentication launched", "cycle", c.id, "transport", t.Kind())
}

// OnRedirect resolves an inbound redirect against the in-flight strategy.
// Redirects no transport recognizes are logged and ignored.
func (o *Orchestrator) OnRedirect(ctx context.Context, p Payload) {
	slog.InfoContext(ctx, "trying to get token from redirect", "payload", p.String())

	c := o.current.Load()
	if c == nil {
		slog.WarnContext(ctx, "no authentication in flight, ignoring redirect")
		return
	}
	if p.CycleID != "" && p.CycleID != c.id {
		slog.WarnContext(ctx, "ignoring redirect of superseded authentication", "cycle", p.CycleID)
		return
	}
	ctx = trace.ContextWithSpan(ctx, c.span)

	t := c.strategy.Match(p)
	if t == nil {
		slog.WarnContext(ctx, "token could not be obtained from redirect", "cycle", c.id)
		return
	}

	if !c.transition(StateLaunched, StateResolving) {
		slog.WarnContext(ctx, "ignoring redirect for authentication that is not awaiting one", "cycle", c.id, "state", c.State())
		return
	}

	// The exchange outlives inbound request contexts.
	ctx = context.WithoutCancel(ctx)
	kind := t.Kind()

	var once sync.Once
	t.ExchangeToken(ctx, p, o.clientSecret, func(resp *Response, err error) {
		once.Do(func() {
			o.resolve(ctx, c, kind, resp, err)
		})
	})
}

// OnTransportResult handles results reported by transports that finish like
// a sub-activity. Only RequestCodeAuthenticate results are processed.
func (o *Orchestrator) OnTransportResult(ctx context.Context, code int, outcome Outcome, p Payload) {
	if code != RequestCodeAuthenticate {
		slog.InfoContext(ctx, "other transport result", "code", code)
		return
	}

	switch outcome {
	case OutcomeOK:
		p.RequestCode = code
		o.OnRedirect(ctx, p)
	case OutcomeCanceled:
		c := o.current.Load()
		if c == nil || (p.CycleID != "" && p.CycleID != c.id) {
			slog.DebugContext(ctx, "ignoring cancellation of superseded authentication", "cycle", p.CycleID)
			return
		}
		ctx = trace.ContextWithSpan(ctx, c.span)
		slog.WarnContext(ctx, "authentication was canceled", "cycle", c.id)
		o.fail(ctx, c, ErrCanceled)
	default:
		slog.WarnContext(ctx, "unhandled transport result", "code", code, "outcome", outcome)
	}
}

// Teardown abandons the in-flight cycle, drops installed handlers and
// releases transports holding resources.
func (o *Orchestrator) Teardown() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.onFailure = nil
	o.observers = nil
	registered := o.registered
	o.registered = nil
	clear(o.selected)
	o.mu.Unlock()

	if c := o.current.Swap(nil); c != nil && c.terminate(StateFailed, nil) {
		slog.Info("abandoning unresolved authentication", "cycle", c.id)
	}

	var errs []error
	for _, r := range registered {
		closer, ok := r.transport.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s transport: %w", r.transport.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// resolve handles the exchange result of cycle c.
func (o *Orchestrator) resolve(ctx context.Context, c *cycle, kind Kind, resp *Response, err error) {
	if o.current.Load() != c {
		slog.DebugContext(ctx, "ignoring response of superseded authentication", "cycle", c.id, "transport", kind)
		return
	}

	switch {
	case err != nil:
		o.fail(ctx, c, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err))
		return
	case resp == nil:
		o.fail(ctx, c, fmt.Errorf("%w: empty response", ErrTokenExchangeFailed))
		return
	case resp.Type != ResponseToken:
		o.fail(ctx, c, fmt.Errorf("%w: %s", ErrTokenExchangeFailed, resp))
		return
	}

	// Once saving, a newer Launch or Teardown can no longer end the cycle,
	// so a superseded cycle never reaches the store.
	if !c.transition(StateResolving, StateSaving) {
		slog.DebugContext(ctx, "authentication ended before saving", "cycle", c.id)
		return
	}
	if o.current.Load() != c {
		c.finish(StateSaving, StateFailed, nil)
		slog.DebugContext(ctx, "ignoring response of superseded authentication", "cycle", c.id, "transport", kind)
		return
	}

	if err := o.store.Save(ctx, o.tokenKey, resp.AccessToken); err != nil {
		err = fmt.Errorf("%w: %w", ErrTokenPersist, err)
		if c.finish(StateSaving, StateFailed, err) {
			o.report(ctx, c, err)
		}
		return
	}
	slog.InfoContext(ctx, "token saved", "cycle", c.id, "transport", kind, "key", o.tokenKey)

	if o.refreshTokenKey != "" && resp.Token != nil && resp.Token.RefreshToken != "" {
		if err := o.store.Save(ctx, o.refreshTokenKey, resp.Token.RefreshToken); err != nil {
			// Sign-in still succeeded; only refreshing later is affected.
			slog.ErrorContext(ctx, "failed to persist refresh token", "cycle", c.id, "error", err)
		}
	}

	c.finish(StateSaving, StateSucceeded, nil)

	// A newer Launch or Teardown may have replaced the cycle while saving.
	if o.current.Load() != c {
		slog.DebugContext(ctx, "authentication ended before navigation", "cycle", c.id)
		return
	}

	if err := o.navigator.OpenNext(ctx); err != nil {
		slog.ErrorContext(ctx, "navigation after sign-in failed", "cycle", c.id, "error", err)
	}
}

// fail ends cycle c as failed and reports err if c is still current.
func (o *Orchestrator) fail(ctx context.Context, c *cycle, err error) {
	if !c.terminate(StateFailed, err) {
		return
	}
	o.report(ctx, c, err)
}

// report hands the failure of cycle c to the failure handler if c is still current.
func (o *Orchestrator) report(ctx context.Context, c *cycle, err error) {
	if o.current.Load() != c {
		slog.DebugContext(ctx, "dropping failure of superseded authentication", "cycle", c.id, "error", err)
		return
	}

	slog.ErrorContext(ctx, "authentication failed", "cycle", c.id, "error", err)

	o.mu.Lock()
	fn := o.onFailure
	o.mu.Unlock()
	if fn != nil {
		fn(c.id, err)
	}
}
