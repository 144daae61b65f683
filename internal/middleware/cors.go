package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/chordmind/apigw/internal/config"
)

// corsPolicy holds pre-computed CORS header values.
type corsPolicy struct {
	allowOrigins     map[string]bool
	wildcardSuffixes []string // ".example.com" for "*.example.com"
	allowAllOrigins  bool
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	maxAge           string
	allowCredentials bool
}

func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	p := &corsPolicy{
		allowOrigins:     make(map[string]bool),
		allowMethods:     strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:     strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders:    strings.Join(cfg.ExposeHeaders, ", "),
		allowCredentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	for _, origin := range cfg.AllowOrigins {
		switch {
		case origin == "*":
			p.allowAllOrigins = true
		case strings.HasPrefix(origin, "*."):
			p.wildcardSuffixes = append(p.wildcardSuffixes, origin[1:])
		default:
			p.allowOrigins[origin] = true
		}
	}
	return p
}

func (p *corsPolicy) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAllOrigins || p.allowOrigins[origin] {
		return true
	}
	if len(p.wildcardSuffixes) == 0 {
		return false
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, suffix := range p.wildcardSuffixes {
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and decorates responses to allowed
// origins. A disabled configuration yields a pass-through stage.
func CORS(cfg config.CORSConfig) Middleware {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			if !p.originAllowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if p.allowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				if p.exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", p.exposeHeaders)
				}
				next.ServeHTTP(w, r)
				return
			}

			if p.allowMethods != "" {
				h.Set("Access-Control-Allow-Methods", p.allowMethods)
			}
			if p.allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", p.allowHeaders)
			}
			if p.maxAge != "" {
				h.Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
