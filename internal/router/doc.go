// Package router maps request paths to backend routes by longest
// segment-aware path prefix and computes the path forwarded upstream.
package router
