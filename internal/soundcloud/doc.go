// Package soundcloud provides the SoundCloud OAuth endpoint, refreshing token
// sources built from stored tokens and the few API calls needed after sign-in.
//
// SoundCloud requires the Authorization Code flow with PKCE; the client secret
// is sent during code exchange and refresh.
//
// # Token Sources
//
// Use NewTokenSource for previously stored tokens:
//
//	ts := soundcloud.NewTokenSource(cfg, accessToken, refreshToken)
//	// TokenSource implements oauth2.TokenSource and can be used with oauth2.Transport
//
// # Custom Base Transport
//
// Configure a custom base transport for refresh requests (e.g., for proxies or tests):
//
//	ts := soundcloud.NewTokenSource(
//		cfg,
//		accessToken,
//		refreshToken,
//		soundcloud.WithTransport(customTransport),
//	)
package soundcloud
