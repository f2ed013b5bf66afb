package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestErrorRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	h := ErrorRecovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrInternalError, body.Error)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "size=15")
	assert.Contains(t, buf.String(), "path=/pot")
}

func TestCache_OnlyCachesSuccessfulGets(t *testing.T) {
	calls := 0
	status := http.StatusOK
	h := Cache(cache.New(time.Minute, time.Minute), time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte("payload"))
	}))

	serve := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/status", nil))
		return rec
	}

	status = http.StatusInternalServerError
	serve(http.MethodGet)
	status = http.StatusOK
	serve(http.MethodGet)
	assert.Equal(t, 2, calls, "errors are not cached")

	rec := serve(http.MethodGet)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "payload", rec.Body.String())

	serve(http.MethodPost)
	assert.Equal(t, 3, calls, "non-GET requests bypass the cache")
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(rate.Limit(0.001), 2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, serve("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, serve("10.0.0.2:1000"))
}
