package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"launchcore/observability/logging"
)

// RequestIDHeader carries the correlation id for a request. Incoming values
// are trusted; absent ones are filled with a fresh UUID.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the correlation id stored on the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ModuleObserver records the outcome of a handled request.
type ModuleObserver interface {
	Observe(module, op string, status int, duration time.Duration)
}

// Observability tags every request with a correlation id, traces it, records
// module metrics, and writes a structured access log line.
type Observability struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	observer    ModuleObserver
	logRequests bool
}

// NewObservability builds the middleware stack around the supplied logger and
// metrics observer.
func NewObservability(service string, logger *slog.Logger, observer ModuleObserver, logRequests bool) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if service == "" {
		service = "launch-gateway"
	}
	return &Observability{
		logger:      logger,
		tracer:      otel.Tracer(service),
		observer:    observer,
		logRequests: logRequests,
	}
}

// Middleware instruments one module's route subtree.
func (o *Observability) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			ctx, span := o.tracer.Start(ctx, module, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			span.End()

			duration := time.Since(start)
			op := r.Method
			if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
				op = r.Method + " " + rctx.RoutePattern()
			}
			if o.observer != nil {
				o.observer.Observe(module, op, recorder.status, duration)
			}
			if o.logRequests {
				o.logger.Info("request",
					slog.String("module", module),
					slog.String("op", op),
					slog.Int("status", recorder.status),
					slog.Duration("duration", duration),
					slog.String("requestId", requestID),
					logging.MaskField("client", clientID(r)),
				)
			}
		})
	}
}

// MetricsHandler serves the process-wide prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
