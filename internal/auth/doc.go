// Package auth derives the local user's identity from the session token.
//
// The chat server issues an HS256 JWT whose "userId" claim (or "sub", for
// tokens minted by other issuers) names the account. A client that knows the
// signing secret verifies the token with JWTVerifier; a client that does not
// reads the claims with UnverifiedParser and leaves verification to the
// server, which rejects bad tokens on the first request anyway.
//
// Both return an Identity. Expired tokens fail with ErrExpiredToken in
// either mode so the client can prompt for a new one before connecting.
package auth
