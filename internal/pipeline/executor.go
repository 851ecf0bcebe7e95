package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/storefront-gateway/internal/api/middleware"
	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/telemetry"
)

// Outcome labels recorded per request.
const (
	OutcomeDispatched = "dispatch"
	OutcomeResponded  = "respond"
	OutcomeRejected   = "reject"
)

// Executor runs the ordered stage list for each request and then dispatches.
// It is the only component that writes to the connection.
type Executor struct {
	stages     []ports.Stage
	dispatcher *Dispatcher
	translator *Translator
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *telemetry.Metrics
}

// ExecutorConfig wires an executor.
type ExecutorConfig struct {
	// Stages run in slice order.
	Stages     []ports.Stage
	Dispatcher *Dispatcher
	Translator *Translator
	Logger     *slog.Logger
	// Tracer defaults to telemetry.Tracer().
	Tracer trace.Tracer
	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("pipeline: dispatcher is required")
	}
	seen := make(map[string]bool, len(cfg.Stages))
	for _, s := range cfg.Stages {
		if seen[s.Name()] {
			return nil, fmt.Errorf("pipeline: duplicate stage %q", s.Name())
		}
		seen[s.Name()] = true
	}

	e := &Executor{
		stages:     cfg.Stages,
		dispatcher: cfg.Dispatcher,
		translator: cfg.Translator,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		metrics:    cfg.Metrics,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.translator == nil {
		e.translator = NewTranslator(false, e.logger)
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer()
	}
	return e, nil
}

// StageNames returns the stage order.
func (e *Executor) StageNames() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// ServeHTTP implements http.Handler.
func (e *Executor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := domain.NewRequestContext(r, middleware.GetRequestID(r.Context()))
	ctx := WithRequestContext(r.Context(), rc)
	r = r.WithContext(ctx)
	rc.Request = r
	defer e.release(ctx, rc)

	for _, stage := range e.stages {
		out, err := e.runStage(r, stage, rc)
		if err != nil {
			env := domain.ErrInternal(fmt.Errorf("pipeline stage %s: %w", stage.Name(), err))
			e.reject(w, r, rc, env)
			return
		}

		switch out.Action {
		case ports.ActionRespond:
			e.respond(w, rc, out.Response)
			e.metrics.CountOutcome(OutcomeResponded, "")
			return
		case ports.ActionReject:
			env := out.Envelope
			if env == nil {
				env = domain.ErrInternal(fmt.Errorf("pipeline stage %s rejected without an envelope", stage.Name()))
			}
			e.reject(w, r, rc, env)
			return
		case ports.ActionContinue:
			// next stage
		default:
			e.reject(w, r, rc, domain.ErrInternal(fmt.Errorf("pipeline stage %s: unknown action %q", stage.Name(), out.Action)))
			return
		}
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "pipeline.dispatch", trace.WithAttributes(
		attribute.String("http.route.canonical", rc.CanonicalPath),
	))
	env := e.dispatcher.Dispatch(w, r.WithContext(ctx), rc)
	e.metrics.ObserveStage("dispatch", time.Since(start))
	if env != nil {
		span.SetStatus(codes.Error, string(env.Kind))
		span.End()
		e.reject(w, r, rc, env)
		return
	}
	span.End()
	e.metrics.CountOutcome(OutcomeDispatched, "")
}

// release drops request-scoped resources once the response is done. Multipart
// files that spilled past the memory limit live in temp files until removed.
func (e *Executor) release(ctx context.Context, rc *domain.RequestContext) {
	if rc.ParsedBody.Kind != domain.BodyKindMultipart || rc.ParsedBody.Multipart == nil {
		return
	}
	if err := rc.ParsedBody.Multipart.RemoveAll(); err != nil {
		e.logger.WarnContext(ctx, "failed to remove multipart temp files",
			slog.String("request_id", rc.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) runStage(r *http.Request, stage ports.Stage, rc *domain.RequestContext) (*ports.StageOutput, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(r.Context(), "pipeline."+stage.Name())
	defer span.End()

	out, err := stage.Process(ctx, rc)
	e.metrics.ObserveStage(stage.Name(), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out == nil {
		out = ports.Continue()
	}
	span.SetAttributes(attribute.String("pipeline.action", string(out.Action)))
	if out.Envelope != nil {
		span.SetAttributes(attribute.String("pipeline.error_kind", string(out.Envelope.Kind)))
	}
	return out, nil
}

func (e *Executor) respond(w http.ResponseWriter, rc *domain.RequestContext, resp *ports.Response) {
	if resp == nil {
		resp = &ports.Response{Status: http.StatusNoContent}
	}
	h := w.Header()
	applyHeaders(h, rc.ResponseHeader)
	for key, values := range resp.Header {
		h[key] = values
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 && rc.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

func (e *Executor) reject(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext, env *domain.ErrorEnvelope) {
	e.metrics.CountOutcome(OutcomeRejected, string(env.Kind))
	e.translator.Write(r.Context(), w, rc, env)
}
