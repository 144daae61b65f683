package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/util"
)

// unavailableMessage is the detail recorded for any failed probe.
const unavailableMessage = "Service unavailable"

// ProbeResult is the outcome of one health probe.
type ProbeResult struct {
	Status       Status
	ResponseTime time.Duration
	Details      map[string]any
	// Err is set when the probe failed; the status is then DOWN.
	Err error
}

// Prober checks the health of one service.
type Prober interface {
	Probe(ctx context.Context, svc config.ServiceConfig) ProbeResult
}

// HTTPProber probes a service with a GET against its health endpoint.
type HTTPProber struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewHTTPProber creates a prober. A nil client uses a client with the
// default transport; maxBodyBytes bounds how much of the body is read.
func NewHTTPProber(client *http.Client, maxBodyBytes int64) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultHealthMaxBodyBytes
	}
	return &HTTPProber{client: client, maxBodyBytes: maxBodyBytes}
}

// Probe implements Prober. The deadline of ctx bounds the call.
func (p *HTTPProber) Probe(ctx context.Context, svc config.ServiceConfig) ProbeResult {
	start := time.Now()
	result := p.probe(ctx, svc)
	result.ResponseTime = time.Since(start)
	if result.Err != nil {
		result.Status = StatusDown
		result.Details = map[string]any{"error": unavailableMessage}
	}
	return result
}

func (p *HTTPProber) probe(ctx context.Context, svc config.ServiceConfig) ProbeResult {
	fail := func(code int, err error) ProbeResult {
		return ProbeResult{Err: &util.HealthCheckError{Service: svc.Name, StatusCode: code, Cause: err}}
	}

	url := strings.TrimRight(svc.BaseURL, "/") + svc.HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBodyBytes))
		return fail(resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodyBytes+1))
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	if int64(len(body)) > p.maxBodyBytes {
		return fail(resp.StatusCode, fmt.Errorf("health response exceeds %d bytes", p.maxBodyBytes))
	}

	details := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &details); err != nil {
			return fail(resp.StatusCode, fmt.Errorf("invalid health response: %w", err))
		}
	}

	raw, _ := details["status"].(string)
	return ProbeResult{Status: Normalize(raw), Details: details}
}

// IsTimeout reports whether a probe failed on its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
