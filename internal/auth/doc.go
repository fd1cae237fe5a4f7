// Package auth provides the authentication primitives for the local
// REST API: argon2id password hashing in PHC string format, HS256 JWT
// access tokens, and an in-memory refresh session store with rotation
// and family-based reuse detection.
//
// The bridge knows a single operator account, configured as a username
// plus an argon2id hash. There is no user database: access tokens are
// validated by signature alone, and refresh sessions live in memory, so
// a restart simply asks the operator to log in again.
package auth
