package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
	"github.com/pulsedash/x-connector/internal/openapi"
	"github.com/pulsedash/x-connector/internal/serviceerr"
)

const attrOutcome = "outcome"

// requestMetrics records one counter and one latency histogram per
// operation, split by outcome ("ok" or "error") and status code.
type requestMetrics struct {
	app      commoncfg.Application
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newRequestMetrics(ctx context.Context, cfg *config.Config) (*requestMetrics, error) {
	meter := otel.Meter(
		"x-connector/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	requests, err := meter.Int64Counter("http.server.request_count",
		metric.WithDescription("Handled requests by operation and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").WithContext(ctx).Wrapf(err, "creating request counter")
	}

	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("Time spent handling a request"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").WithContext(ctx).Wrapf(err, "creating duration histogram")
	}

	return &requestMetrics{app: cfg.Application, requests: requests, duration: duration}, nil
}

// span is one traced request.
type span struct {
	ctx     context.Context
	m       *requestMetrics
	span    trace.Span
	op      string
	agent   string
	started time.Time
}

// begin extracts the caller's trace context, tags the context logger with a
// request id and the operation, then opens a server span.
func (m *requestMetrics) begin(ctx context.Context, tracer trace.Tracer, r *http.Request, op string) *span {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
	ctx = slogctx.With(ctx,
		commoncfg.AttrRequestID, uuid.NewString(),
		commoncfg.AttrOperation, op,
	)
	ctx, s := tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindServer))

	slogctx.Info(ctx, fmt.Sprintf("Processing %s request", op))

	return &span{ctx: ctx, m: m, span: s, op: op, agent: r.UserAgent(), started: time.Now()}
}

func (s *span) end(status int, err error) {
	defer s.span.End()

	outcome := "ok"
	if err != nil || status >= http.StatusBadRequest {
		outcome = "error"
		s.span.SetStatus(codes.Error, http.StatusText(status))
	}

	attrs := metric.WithAttributes(otlp.CreateAttributesFrom(s.m.app,
		attribute.String(commoncfg.AttrOperation, s.op),
		attribute.String(attrOutcome, outcome),
		attribute.String("status", strconv.Itoa(status)),
		attribute.String("userAgent", s.agent),
	)...)

	s.m.requests.Add(s.ctx, 1, attrs)
	s.m.duration.Record(s.ctx, float64(time.Since(s.started).Microseconds())/1000, attrs)

	slogctx.Info(s.ctx, fmt.Sprintf("Finished %s request", s.op), "status", status, attrOutcome, outcome)
}

func tracerFor(cfg *config.Config, op string) trace.Tracer {
	attrs := otlp.CreateAttributesFrom(cfg.Application, attribute.String(commoncfg.AttrOperation, op))

	return otel.Tracer(op, trace.WithInstrumentationAttributes(attrs...))
}

// traceMiddleware covers the API operations. Failed operations are counted
// with the status their error maps to.
func (m *requestMetrics) traceMiddleware(cfg *config.Config) openapi.StrictMiddlewareFunc {
	return func(f openapi.StrictHandlerFunc, op string) openapi.StrictHandlerFunc {
		tracer := tracerFor(cfg, op)

		return func(ctx context.Context, w http.ResponseWriter, r *http.Request, request any) (any, error) {
			s := m.begin(ctx, tracer, r, op)

			response, err := f(s.ctx, w, r, request)

			s.end(responseStatus(response, err), err)

			return response, err
		}
	}
}

func responseStatus(response any, err error) int {
	if err != nil {
		return serviceerr.From(err).HTTPStatus()
	}

	switch resp := response.(type) {
	case openapi.XOAuthdefaultJSONResponse:
		return resp.StatusCode
	case openapi.XAPIdefaultJSONResponse:
		return resp.StatusCode
	default:
		return http.StatusOK
	}
}

// statusRecorder remembers the status a page handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// tracedHandler covers a browser page with the same tracing as the API.
func (m *requestMetrics) tracedHandler(cfg *config.Config, op string, h http.HandlerFunc) http.HandlerFunc {
	tracer := tracerFor(cfg, op)

	return func(w http.ResponseWriter, r *http.Request) {
		s := m.begin(r.Context(), tracer, r, op)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r.WithContext(s.ctx))

		s.end(rec.status, nil)
	}
}
