package jwt

import (
	"strconv"
	"time"
)

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID    string
	Email     string
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	// Raw holds every claim of the token, registered and private.
	Raw map[string]any
}

// HasIdentity reports whether at least one identity claim was found.
func (c *Claims) HasIdentity() bool {
	return c != nil && (c.UserID != "" || c.Email != "")
}

// ClaimExtractor reads one candidate claim. It returns false when the claim
// is absent or not usable.
type ClaimExtractor func(raw map[string]any) (string, bool)

// Claim returns an extractor for a named claim. Strings are taken as is and
// whole numbers are formatted in base 10.
func Claim(name string) ClaimExtractor {
	return func(raw map[string]any) (string, bool) {
		return stringClaim(raw[name])
	}
}

func stringClaim(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		if val != float64(int64(val)) {
			return "", false
		}
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	default:
		return "", false
	}
}

// Default extractor chains. Older tokens carry user_id instead of userId, and
// the user service puts the email in sub.
var (
	DefaultUserIDExtractors = []ClaimExtractor{Claim("userId"), Claim("user_id")}
	DefaultEmailExtractors  = []ClaimExtractor{Claim("email"), Claim("sub")}
)

// firstOf tries extractors in order and returns the first hit.
func firstOf(raw map[string]any, extractors []ClaimExtractor) string {
	for _, extract := range extractors {
		if v, ok := extract(raw); ok {
			return v
		}
	}
	return ""
}
