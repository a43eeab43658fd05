package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Strategy is the ordered, immutable set of transports tried for one cycle.
type Strategy struct {
	transports   []Transport
	checkNetwork bool
}

// NewStrategy creates a Strategy trying transports in the given order.
func NewStrategy(transports []Transport, checkNetwork bool) *Strategy {
	return &Strategy{
		transports:   slices.Clone(transports),
		checkNetwork: checkNetwork,
	}
}

// Kinds returns the transport kinds in attempt order.
func (s *Strategy) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.transports))
	for _, t := range s.transports {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// Authenticate runs the network precheck and launches the transports in order
// until one starts. It returns the transport that was launched.
func (s *Strategy) Authenticate(ctx context.Context, checker NetworkChecker, req LaunchRequest) (Transport, error) {
	if len(s.transports) == 0 {
		return nil, ErrEmptySelection
	}

	if s.checkNetwork && checker != nil {
		if err := checker.Check(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetworkUnreachable, err)
		}
	}

	var errs []error
	for _, t := range s.transports {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := t.Launch(ctx, req)
		if err == nil {
			return t, nil
		}
		slog.WarnContext(ctx, "transport launch failed, trying next", "cycle", req.CycleID, "transport", t.Kind(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", t.Kind(), err))
	}

	return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, errors.Join(errs...))
}

// Match returns the first transport recognizing the payload, or nil.
func (s *Strategy) Match(p Payload) Transport {
	for _, t := range s.transports {
		if t.MatchesRedirect(p) {
			return t
		}
	}
	return nil
}
