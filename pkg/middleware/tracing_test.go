package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// recordingProvider keeps every span it starts.
type recordingProvider struct {
	noop.TracerProvider
	mu    sync.Mutex
	spans []*recordingSpan
}

func (p *recordingProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

func (p *recordingProvider) last() *recordingSpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.spans) == 0 {
		return nil
	}
	return p.spans[len(p.spans)-1]
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	for _, kv := range cfg.Attributes() {
		s.attrs[kv.Key] = kv.Value
	}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, s)
	t.provider.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) SetName(name string) { s.name = name }

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func TestTracerHandler(t *testing.T) {
	tp := &recordingProvider{}
	tracer := NewTracer(WithTracerProvider(tp), WithAttributeExtractor(func(r *http.Request) []attribute.KeyValue {
		return []attribute.KeyValue{attribute.String("test.attr", "ok")}
	}))

	var inner trace.Span
	r := chi.NewRouter()
	r.Use(tracer.Handler)
	r.Post("/params/{key}", func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanFromContext(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/params/foo", nil))

	span := tp.last()
	if span == nil {
		t.Fatal("no span started")
	}
	if inner != trace.Span(span) {
		t.Error("handler did not see the request span in its context")
	}
	if span.name != "POST /params/{key}" {
		t.Errorf("span name = %q", span.name)
	}
	if got := span.attrs["http.route"].AsString(); got != "/params/{key}" {
		t.Errorf("http.route = %q", got)
	}
	if got := span.attrs["http.status_code"].AsInt64(); got != 500 {
		t.Errorf("http.status_code = %d", got)
	}
	if got := span.attrs["test.attr"].AsString(); got != "ok" {
		t.Errorf("test.attr = %q", got)
	}
	if span.status != codes.Error {
		t.Errorf("status = %v, want Error", span.status)
	}
	if !span.ended {
		t.Error("span not ended")
	}
}

func TestTracerFilterSkipsTracing(t *testing.T) {
	tp := &recordingProvider{}
	tracer := NewTracer(WithTracerProvider(tp), WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))

	called := false
	h := tracer.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	if !called {
		t.Fatal("filtered request did not reach the handler")
	}
	if tp.last() != nil {
		t.Error("filtered request was traced")
	}
}

func TestRenderSpan(t *testing.T) {
	tp := &recordingProvider{}
	tracer := NewTracer(WithTracerProvider(tp))

	_, span := tracer.StartRenderSpan(context.Background(), "sess-1", "change")
	boom := errors.New("boom")
	EndRenderSpan(span, 2, boom)

	rec := tp.last()
	if rec.name != "params.render" {
		t.Errorf("span name = %q", rec.name)
	}
	if got := rec.attrs["params.session_id"].AsString(); got != "sess-1" {
		t.Errorf("params.session_id = %q", got)
	}
	if got := rec.attrs["params.exported_keys"].AsInt64(); got != 2 {
		t.Errorf("params.exported_keys = %d", got)
	}
	if rec.status != codes.Error || len(rec.errs) != 1 || !rec.ended {
		t.Errorf("span = %+v, want ended with one recorded error", rec)
	}
}

func TestTracerDefaultsToGlobalProvider(t *testing.T) {
	tracer := NewTracer()
	_, span := tracer.StartRenderSpan(context.Background(), "s", "load")
	EndRenderSpan(span, 0, nil)
}
