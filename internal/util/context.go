package util

import (
	"context"
	"time"
)

type ctxKey string

const (
	ctxKeyRequestInfo ctxKey = "request_info"
	ctxKeyStartTime   ctxKey = "start_time"
)

// RequestInfo is a per-request record filled in by inner pipeline stages and
// read back by the outer ones once the handler chain has returned. It is
// only touched by the goroutine serving the request.
type RequestInfo struct {
	// Route is the matched service id, empty when no route matched.
	Route string
	// UserID is the authenticated caller, empty for anonymous requests.
	UserID string
	// Fallback is set when the response came from the fallback responder.
	Fallback bool
	// FallbackReason explains why the fallback was served.
	FallbackReason string
	// EntryLogged is set once the access log entry line has been written.
	EntryLogged bool
}

// ContextWithRequestInfo attaches a fresh RequestInfo to ctx and returns both.
func ContextWithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info := RequestInfoFromContext(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, ctxKeyRequestInfo, info), info
}

// RequestInfoFromContext returns the RequestInfo attached to ctx, or nil.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(ctxKeyRequestInfo).(*RequestInfo)
	return info
}

// SetRoute records the matched route on the request info, if present.
func SetRoute(ctx context.Context, route string) {
	if info := RequestInfoFromContext(ctx); info != nil {
		info.Route = route
	}
}

// SetUserID records the authenticated user on the request info, if present.
func SetUserID(ctx context.Context, userID string) {
	if info := RequestInfoFromContext(ctx); info != nil {
		info.UserID = userID
	}
}

// MarkFallback records that the fallback responder produced the response.
func MarkFallback(ctx context.Context, reason string) {
	if info := RequestInfoFromContext(ctx); info != nil {
		info.Fallback = true
		info.FallbackReason = reason
	}
}

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	v, _ := ctx.Value(ctxKeyStartTime).(time.Time)
	return v
}
