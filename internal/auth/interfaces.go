package auth

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// Kind identifies an authentication transport.
type Kind string

const (
	KindBrowser  Kind = "browser"
	KindTab      Kind = "tab"
	KindEmbedded Kind = "embedded"
)

// Kinds lists every known transport kind.
var Kinds = []Kind{KindBrowser, KindTab, KindEmbedded}

// ParseKind converts a transport name into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// RequestCodeAuthenticate tags results delivered through OnTransportResult
// by transports that report back like a finished sub-activity.
const RequestCodeAuthenticate = 1337

// Outcome is the result status of a transport reporting through OnTransportResult.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Payload is an inbound redirect. URL is nil when the delivering transport
// had nothing to report.
type Payload struct {
	URL *url.URL

	// RequestCode is set for payloads delivered through OnTransportResult.
	RequestCode int

	// CycleID, when set, names the cycle the payload belongs to. Payloads of
	// other cycles are ignored.
	CycleID string
}

func (p Payload) String() string {
	if p.URL == nil {
		return "<none>"
	}
	// Never log the query: it carries the authorization code.
	return p.URL.Scheme + "://" + p.URL.Host + p.URL.Path
}

// ResponseType tags a Response.
type ResponseType int

const (
	ResponseToken ResponseType = iota
	ResponseError
	ResponseOther
)

func (t ResponseType) String() string {
	switch t {
	case ResponseToken:
		return "token"
	case ResponseError:
		return "error"
	default:
		return "other"
	}
}

// Response is the outcome of exchanging a redirect.
type Response struct {
	Type ResponseType

	// AccessToken and Token are set for ResponseToken.
	AccessToken string
	Token       *oauth2.Token

	// Error and ErrorDescription are set for ResponseError.
	Error            string
	ErrorDescription string
}

func (r *Response) String() string {
	switch r.Type {
	case ResponseToken:
		return "token response"
	case ResponseError:
		if r.ErrorDescription != "" {
			return fmt.Sprintf("error response: %s (%s)", r.Error, r.ErrorDescription)
		}
		return "error response: " + r.Error
	default:
		return "unexpected response"
	}
}

// ResponseFunc receives the result of a token exchange. Exactly one of resp
// and err is non-nil. It may be called on any goroutine.
type ResponseFunc func(resp *Response, err error)

// LaunchRequest carries per-cycle data handed to a transport.
type LaunchRequest struct {
	CycleID string
}

// Transport performs sign-in through one mechanism.
type Transport interface {
	Kind() Kind

	// Prepare initializes the transport and reports whether it can be used.
	Prepare(ctx context.Context) bool

	// Launch starts the sign-in. A returned error makes the strategy move on
	// to its next transport.
	Launch(ctx context.Context, req LaunchRequest) error

	// MatchesRedirect reports whether the payload answers a sign-in this
	// transport launched.
	MatchesRedirect(p Payload) bool

	// ExchangeToken turns the payload into a Response and hands it to fn,
	// usually from another goroutine.
	ExchangeToken(ctx context.Context, p Payload, clientSecret string, fn ResponseFunc)
}

// TokenStore persists the access token.
type TokenStore interface {
	Save(ctx context.Context, key, value string) error
}

// Navigator moves on after a successful sign-in.
type Navigator interface {
	OpenNext(ctx context.Context) error
}

// NetworkChecker verifies the authorization server can be reached.
type NetworkChecker interface {
	Check(ctx context.Context) error
}

// FailureFunc receives every failure of a cycle.
type FailureFunc func(cycleID string, err error)

// AvailabilityFunc is notified when a transport becomes usable or unusable.
type AvailabilityFunc func(kind Kind, available bool)
