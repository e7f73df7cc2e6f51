package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	// EditorKey holds the user recorded in rule metadata.
	EditorKey contextKey = "editor"

	TraceIDKey   contextKey = "traceID"
	RequestIDKey contextKey = "requestID"

	// EditorHeader names the user recorded as createdBy/modifiedBy on rule edits.
	EditorHeader    = "X-Editor"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"

	// DefaultEditor is recorded when no X-Editor header is sent.
	DefaultEditor = "api"

	maxEditorLen = 64
)

var tracer = otel.Tracer("ruler-api")

// EditorMiddleware puts the acting editor into the request context.
// Blank names fall back to DefaultEditor; long names are cut to 64 bytes.
func EditorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		editor := strings.TrimSpace(r.Header.Get(EditorHeader))
		if editor == "" {
			editor = DefaultEditor
		}
		if len(editor) > maxEditorLen {
			editor = editor[:maxEditorLen]
		}

		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("ruler.editor", editor))

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), EditorKey, editor)))
	})
}

// TracingMiddleware opens a span per request and echoes the request and
// trace ids back as response headers. The span is renamed to the matched
// chi route once the handler returns, so /rules/{id}/impact is one series.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := requestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}

		ctx = context.WithValue(ctx, RequestIDKey, requestID)
		ctx = context.WithValue(ctx, TraceIDKey, traceID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		rw := wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
			}
		}
		span.SetAttributes(attribute.Int("http.status_code", rw.status))
		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}
	})
}

// LoggingMiddleware writes one access log line per request. Client errors
// log at warn, server errors at error.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		switch {
		case rw.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		requestID, _ := r.Context().Value(RequestIDKey).(string)
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", rw.status,
			"bytes", rw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"editor", r.Header.Get(EditorHeader),
			"request_id", requestID,
			"trace_id", GetTraceID(r.Context()),
		)
	})
}

// CORSMiddleware lets a browser-based rule editor call the API.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", EditorHeader, RequestIDHeader, TraceIDHeader}, ", "))
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a 500 with the usual error body.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"trace_id", GetTraceID(r.Context()),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
					"code":  "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func wrap(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// GetEditor returns the editor stored by EditorMiddleware, or DefaultEditor.
func GetEditor(ctx context.Context) string {
	if v, ok := ctx.Value(EditorKey).(string); ok && v != "" {
		return v
	}
	return DefaultEditor
}

// GetTraceID returns the trace id stored by TracingMiddleware.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
