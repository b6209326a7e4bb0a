// Package identity authenticates the parties acting on the ledger.
//
// It provides:
//   - KeyManager   : creates/loads the RSA signing key
//   - TokenIssuer  : issues and verifies RS256 role tokens
//   - Authenticator: Gin middleware resolving the caller's model.Identity
//   - JWKSHandler  : publishes the verification key at /.well-known/jwks.json
package identity
