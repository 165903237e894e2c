// Package auth ties credential verification to the session store.
//
// The Authenticator issues and revokes sessions, the Gate stage keeps
// unauthenticated requests away from protected paths, and CurrentPrincipal
// exposes the resolved identity to handlers.
package auth
