// Package jwt issues and verifies HS256 bearer tokens carrying identity and
// role claims.
//
// Tokens carry sub, name, email, role, iss, aud, iat, nbf, exp and jti, and
// always expire [TokenLifetime] after issuance. There is no refresh or
// revocation; expiry is the only way a token stops being accepted.
package jwt
