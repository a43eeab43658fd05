// Package auth orchestrates sign-in across several authentication transports.
//
// An Orchestrator holds the registered transports, the user's selection of
// them and at most one in-flight authentication cycle. Each Launch builds an
// immutable Strategy from the selection (in registration order) and tries its
// transports until one starts. The OAuth redirect reaches the orchestrator
// through OnRedirect (deep-link style delivery) or OnTransportResult
// (activity-result style delivery) and is resolved by whichever strategy
// transport recognizes it.
//
// # Cycles
//
// Every Launch starts a new cycle and abandons the previous one:
//
//	Launched -> Resolving -> Succeeded | Failed
//
// Late callbacks from an abandoned cycle are dropped, so a superseded sign-in
// can never save a token or navigate.
//
// # Failures
//
// All failures are reported through the failure handler and logged; none of
// them are fatal and none are retried. Redirects that no transport recognizes
// are logged and otherwise ignored.
package auth
