package facade

import (
	"net/http"

	"github.com/orchestrator/fabric/internal/orchtypes"
	"github.com/orchestrator/fabric/internal/ratelimit"
)

// headerRemovalWriter strips implementation-revealing response headers,
// adapted verbatim from the teacher's internal/server/middleware.go.
type headerRemovalWriter struct {
	http.ResponseWriter
	headerWritten bool
}

func (w *headerRemovalWriter) Header() http.Header {
	return w.ResponseWriter.Header()
}

func (w *headerRemovalWriter) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.writeSecurityHeaders()
		w.headerWritten = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *headerRemovalWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.writeSecurityHeaders()
		w.headerWritten = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *headerRemovalWriter) writeSecurityHeaders() {
	h := w.ResponseWriter.Header()
	h.Del("Server")
	h.Del("X-Powered-By")
	h.Set("Server", "fabric")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
}

func (w *headerRemovalWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// SecurityHeadersMiddleware strips Server/X-Powered-By and sets a
// generic identity, grounded on the teacher's identically named
// middleware.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&headerRemovalWriter{ResponseWriter: w}, r)
	})
}

// rateLimitMiddleware enforces the per-client-per-class token buckets
// from spec §4.9. Identity comes from IdentityHeader, defaulting to
// "anonymous" (the Non-goals exclude richer auth).
func (f *Facade) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.Header.Get(IdentityHeader)
		if clientID == "" {
			clientID = "anonymous"
		}
		class := ratelimit.ClassForPath(r.URL.Path)
		if !f.limiter.Allow(clientID, class) {
			respondError(w, f.log, orchtypes.NewAPIError(orchtypes.ErrRateLimited, "rate limit exceeded for %s", class))
			return
		}
		next.ServeHTTP(w, r)
	})
}
