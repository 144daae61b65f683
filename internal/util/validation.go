package util

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateURL validates an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidatePathPrefix validates a route or allowlist prefix.
func ValidatePathPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("path prefix cannot be empty")
	}
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("path prefix must start with '/', got: %q", prefix)
	}
	if strings.ContainsAny(prefix, "?#*") {
		return fmt.Errorf("path prefix must not contain wildcards, query or fragment: %q", prefix)
	}
	return nil
}

// ValidatePort validates a port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// ValidatePositiveDuration validates a duration is strictly positive.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive: %v", d)
	}
	return nil
}

// ValidatePercentage validates a failure-rate percentage in (0, 100].
func ValidatePercentage(value float64) error {
	if value <= 0 || value > 100 {
		return fmt.Errorf("percentage must be in (0, 100], got: %g", value)
	}
	return nil
}

// ValidateNonEmpty validates that a string is not blank.
func ValidateNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}
