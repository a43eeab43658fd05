// Package tokenstore provides persistent storage abstractions for authentication tokens.
//
// A store is a small named key-value space (for example "soundcloud") holding
// one value per key. Supports three storage backends with different security
// and deployment tradeoffs:
//   - File: One file per key in a private directory, atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Signing in requires writable storage (file or keyring), while tokens issued
// elsewhere can be served from any backend including read-only env storage.
package tokenstore
