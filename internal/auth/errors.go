package auth

import "errors"

var (
	// ErrTransportUnavailable is returned when toggling a transport that was
	// never registered or did not prepare successfully.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrEmptySelection is reported when Launch is called with no selected transports.
	ErrEmptySelection = errors.New("no authentication transport selected")

	// ErrNetworkUnreachable is reported when the network precheck fails.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrLaunchFailed is reported when every transport of a strategy failed to launch.
	ErrLaunchFailed = errors.New("no transport could be launched")

	// ErrTokenExchangeFailed is reported when a recognized redirect could not
	// be turned into an access token.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenPersist is reported when the access token could not be saved.
	ErrTokenPersist = errors.New("persisting token failed")

	// ErrCanceled is reported when the user canceled an embedded sign-in.
	ErrCanceled = errors.New("authentication canceled")
)
