// Package password derives and verifies salted password credentials.
//
// # Algorithms
//
//   - [HMAC]: HMAC-SHA-512 keyed by a random salt (default, 128-byte salt).
//   - [Argon2]: Argon2id with fixed cost parameters, selected by configuration.
//
// Both return a [Credential] holding the raw hash and salt bytes. Verification
// always recomputes with the stored salt and compares with
// crypto/subtle.ConstantTimeCompare.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials.
//   - Enforce password policy (length, confirmation); the Engine owns that.
//   - Log plaintext passwords.
package password
