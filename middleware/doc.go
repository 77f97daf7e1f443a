// Package middleware holds the HTTP adapters that sit around the engine:
// bearer-token guards, request ids, request logging and panic recovery.
//
// # Guards
//
//   - [Guard] rejects requests without a valid bearer token with 401.
//   - [RequireRole] rejects authenticated callers lacking a role with 403.
//   - [IdentityFromBearer] reads the token subject without rejecting; the
//     admission gate uses it to build client keys.
//
// Guards delegate all token validation to a [TokenParser] (normally
// *handson.Engine). This package never signs or parses JWTs itself.
package middleware
