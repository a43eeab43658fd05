// Package transport implements the sign-in transports driven by package auth.
//
// Three transports are available:
//   - Browser: opens the authorization page in the system browser; the
//     redirect arrives at the loopback redirect server.
//   - Tab: opens the authorization page in a dedicated app-mode window of a
//     Chromium-family browser owned by this process; closing the transport
//     closes the window.
//   - Embedded: shows the authorization URL in the terminal and reads the
//     redirect URL pasted back by the user, reporting it as a transport result.
//
// Every transport owns an Exchanger holding the state and PKCE verifier of
// its outstanding sign-in, so a redirect only matches the transport that
// launched it.
package transport
