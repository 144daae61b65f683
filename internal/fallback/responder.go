package fallback

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chordmind/apigw/internal/config"
	"github.com/chordmind/apigw/internal/observability"
	"github.com/chordmind/apigw/internal/util"
)

// PathPrefix is the mount point of the fallback endpoints.
const PathPrefix = "/fallback"

// Response is the fallback body.
type Response struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

// Entry is the static content of one fallback.
type Entry struct {
	Service string
	Message string
}

// Responder holds the fallback table keyed by fallback id.
type Responder struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	logger  observability.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Responder) {
		r.now = now
	}
}

// NewResponder creates a responder with an empty table.
func NewResponder(opts ...Option) *Responder {
	r := &Responder{
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromRoutes creates a responder with one entry per route, keyed by the
// id in the route's fallback path.
func NewFromRoutes(routes []config.RouteConfig, opts ...Option) *Responder {
	r := NewResponder(opts...)
	for _, rc := range routes {
		id := IDFromPath(rc.FallbackPath)
		if id == "" {
			id = rc.ServiceID
		}
		service := rc.Backend
		if service == "" {
			service = rc.ServiceID
		}
		r.Register(id, Entry{Service: service, Message: rc.FallbackMessage})
	}
	return r
}

// Register adds or replaces the entry for id. An empty message becomes
// "<service> is temporarily unavailable".
func (r *Responder) Register(id string, e Entry) {
	if e.Service == "" {
		e.Service = id
	}
	if e.Message == "" {
		e.Message = defaultMessage(e.Service)
	}
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
}

// Lookup returns the fallback for id. Unknown ids get a generic body that
// names the id.
func (r *Responder) Lookup(id string) Response {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		e = Entry{Service: id, Message: defaultMessage(id)}
	}
	return Response{
		Message:   e.Message,
		Timestamp: util.Timestamp(r.now()),
		Service:   e.Service,
	}
}

// IDs returns the registered fallback ids.
func (r *Responder) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Write writes the fallback for id as a 200 response. reason is exposed in
// the X-Gateway-Fallback header.
func (r *Responder) Write(w http.ResponseWriter, id, reason string) {
	resp := r.Lookup(id)
	if reason != "" {
		w.Header().Set(util.HeaderFallback, reason)
	}
	if err := util.WriteJSON(w, http.StatusOK, resp); err != nil {
		r.logger.Warn("failed to write fallback response",
			observability.String("fallback", id),
			observability.Error(err),
		)
	}
}

// Handler serves /fallback/:service for any method.
func (r *Responder) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.Trim(c.Param("service"), "/")
		c.JSON(http.StatusOK, r.Lookup(id))
	}
}

// Mount registers the fallback endpoints on the engine.
func (r *Responder) Mount(engine gin.IRouter) {
	engine.Any(PathPrefix+"/:service", r.Handler())
}

// IDFromPath extracts the fallback id from a path like "/fallback/practice".
func IDFromPath(p string) string {
	rest, ok := strings.CutPrefix(p, PathPrefix+"/")
	if !ok {
		return ""
	}
	rest = strings.Trim(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func defaultMessage(name string) string {
	return name + " is temporarily unavailable"
}
