package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/florianilch/sclogin/internal/auth"
)

// ResultFunc receives the result of an Embedded sign-in, mirroring
// auth.Orchestrator.OnTransportResult.
type ResultFunc func(ctx context.Context, code int, outcome auth.Outcome, p auth.Payload)

// Embedded runs the sign-in inside the terminal: the user opens the printed
// URL anywhere and pastes back the URL the browser was redirected to.
type Embedded struct {
	exchanger   *Exchanger
	requestCode int
	result      ResultFunc

	in         io.Reader
	out        io.Writer
	isTerminal func() bool

	mu      sync.Mutex
	pending string // cycle waiting for a pasted redirect
	reading bool
	readErr error
}

// Compile-time check to ensure Embedded implements auth.Transport
var (
	_ auth.Transport = (*Embedded)(nil)
	_ io.Closer      = (*Embedded)(nil)
)

// EmbeddedOption configures an Embedded transport.
type EmbeddedOption func(*Embedded)

// WithTerminal replaces the terminal the transport talks to. isTerminal
// decides whether the transport can be used.
func WithTerminal(in io.Reader, out io.Writer, isTerminal func() bool) EmbeddedOption {
	return func(e *Embedded) {
		e.in = in
		e.out = out
		e.isTerminal = isTerminal
	}
}

// NewEmbedded creates an Embedded transport reporting to result under requestCode.
func NewEmbedded(exchanger *Exchanger, requestCode int, result ResultFunc, opts ...EmbeddedOption) (*Embedded, error) {
	if exchanger == nil {
		return nil, errors.New("missing exchanger")
	}
	if result == nil {
		return nil, errors.New("missing result handler")
	}

	e := &Embedded{
		exchanger:   exchanger,
		requestCode: requestCode,
		result:      result,
		in:          os.Stdin,
		out:         os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Kind implements auth.Transport.
func (e *Embedded) Kind() auth.Kind {
	return auth.KindEmbedded
}

// Prepare reports whether an interactive terminal is attached.
func (e *Embedded) Prepare(ctx context.Context) bool {
	if !e.isTerminal() {
		slog.InfoContext(ctx, "embedded transport unavailable, stdin is not a terminal")
		return false
	}
	return true
}

// Launch prints the authorization URL and waits for the pasted redirect in
// the background. A single goroutine reads the terminal for all launches;
// input is attributed to the latest launch only.
func (e *Embedded) Launch(ctx context.Context, req auth.LaunchRequest) error {
	e.mu.Lock()
	err := e.readErr
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("terminal input unavailable: %w", err)
	}

	authURL := e.exchanger.AuthCodeURL(req.CycleID)

	_, err = fmt.Fprintf(e.out, "\nOpen this URL in a browser and sign in to SoundCloud:\n\n  %s\n\n"+
		"Then paste the address your browser was redirected to (empty line cancels):\n", authURL)
	if err != nil {
		e.exchanger.Reset()
		return fmt.Errorf("writing to terminal: %w", err)
	}

	e.mu.Lock()
	e.pending = req.CycleID
	start := !e.reading
	e.reading = true
	e.mu.Unlock()

	if start {
		go e.readRedirects(context.WithoutCancel(ctx))
	}
	return nil
}

// Close stops attributing terminal input to any launch.
func (e *Embedded) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = ""
	if e.readErr == nil {
		e.readErr = errEmbeddedClosed
	}
	return nil
}

var errEmbeddedClosed = errors.New("embedded transport closed")

func (e *Embedded) readRedirects(ctx context.Context) {
	reader := bufio.NewReader(e.in)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.WarnContext(ctx, "reading pasted redirect failed", "error", err)
			}
			e.mu.Lock()
			if e.readErr == nil {
				e.readErr = err
			}
			e.mu.Unlock()
		}

		switch u, perr := url.Parse(line); {
		case line == "":
			e.deliver(ctx, auth.OutcomeCanceled, auth.Payload{})
		case perr == nil && u.Scheme != "" && u.Host != "":
			e.deliver(ctx, auth.OutcomeOK, auth.Payload{URL: u})
		case err == nil && e.awaiting():
			_, _ = fmt.Fprintln(e.out, "That does not look like a URL, try again:")
		}

		if err != nil {
			e.deliver(ctx, auth.OutcomeCanceled, auth.Payload{})
			return
		}
	}
}

func (e *Embedded) awaiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != ""
}

// deliver reports a result for the launch awaiting input, if any.
func (e *Embedded) deliver(ctx context.Context, outcome auth.Outcome, p auth.Payload) {
	e.mu.Lock()
	cycleID := e.pending
	e.pending = ""
	e.mu.Unlock()

	if cycleID == "" {
		slog.DebugContext(ctx, "ignoring terminal input, no sign-in is waiting for it")
		return
	}
	p.CycleID = cycleID
	e.result(ctx, e.requestCode, outcome, p)
}

// MatchesRedirect recognizes results reported under this transport's request code.
func (e *Embedded) MatchesRedirect(p auth.Payload) bool {
	return p.RequestCode == e.requestCode && e.exchanger.MatchesRedirectURL(p.URL)
}

// ExchangeToken implements auth.Transport.
func (e *Embedded) ExchangeToken(ctx context.Context, p auth.Payload, clientSecret string, fn auth.ResponseFunc) {
	e.exchanger.ExchangeAsync(ctx, p.URL, clientSecret, fn)
}
