package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"georef/internal/platform/metrics"
	"georef/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	s.Run("mints an ID when absent", func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		s.NotEmpty(seen)
		s.Equal(seen, w.Header().Get(RequestIDHeader))
	})

	s.Run("propagates caller ID", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "req-42")
		h.ServeHTTP(w, r)
		s.Equal("req-42", seen)
		s.Equal("req-42", w.Header().Get(RequestIDHeader))
	})

	s.Run("replaces oversized ID", func() {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		h.ServeHTTP(httptest.NewRecorder(), r)
		s.Len(seen, 36)
	})
}

func (s *MiddlewareSuite) TestRecovery() {
	h := Recovery(s.logger, s.metrics)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	s.NotPanics(func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Contains(w.Body.String(), "internal_error")
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.PanicsRecovered))
}

func (s *MiddlewareSuite) TestLoggerRecordsRoutePattern() {
	r := chi.NewRouter()
	r.Use(Logger(s.logger, s.metrics))
	r.Get("/georef/gcp/{imageId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/georef/gcp/abc", nil))

	s.Equal(http.StatusTeapot, w.Code)
	count := promtestutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("/georef/gcp/{imageId}", http.MethodGet, "418"))
	s.Equal(1.0, count)
}

func (s *MiddlewareSuite) TestContentTypeJSON() {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("rejects form bodies", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		h.ServeHTTP(w, r)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("accepts json with charset", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")
		h.ServeHTTP(w, r)
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("ignores bodyless GET", func() {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		s.Equal(http.StatusNoContent, w.Code)
	})
}

func TestTimeoutSetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := Timeout(50 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, hasDeadline)

	hasDeadline = false
	Timeout(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, hasDeadline)
}
