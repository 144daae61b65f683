// Package jwt verifies HMAC signed bearer tokens and extracts the caller
// identity from their claims.
//
// Signature and time-based claim checks are delegated to
// github.com/lestrrat-go/jwx/v2. The shared secret can be swapped at runtime
// with SetSecret, which the gateway uses when the secret source is reloaded.
package jwt
