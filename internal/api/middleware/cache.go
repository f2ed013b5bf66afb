package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (w *bodyCacheWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Cache returns middleware for in-memory caching of successful GET responses,
// keyed by request URI.
func Cache(store *cache.Cache, duration time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RequestURI
			if resp, found := store.Get(key); found {
				cached := resp.(cachedResponse)
				for k, v := range cached.headers {
					w.Header()[k] = v
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(cached.status)
				w.Write(cached.body)
				return
			}

			bcw := &bodyCacheWriter{ResponseWriter: w, status: http.StatusOK, body: bytes.NewBuffer(nil)}
			next.ServeHTTP(bcw, r)

			if bcw.status >= 200 && bcw.status < 300 {
				store.Set(key, cachedResponse{
					status:  bcw.status,
					headers: bcw.Header().Clone(),
					body:    bcw.body.Bytes(),
				}, duration)
			}
		})
	}
}
