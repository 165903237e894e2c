// Package session implements the server-side session store: an explicitly
// constructed, concurrency-safe mapping from opaque tokens to the principal
// payload of an authenticated client.
//
// Only the token ever leaves the server. Tokens are random (version 4) UUIDs,
// which carry 122 bits of entropy.
package session
