package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// Route is an exact (method, path) registration.
type Route struct {
	Method  string
	Path    string
	Handler ports.Handler
}

// RouteGroup hands every request under Prefix to one collaborator.
type RouteGroup struct {
	Prefix  string
	Handler ports.Handler
}

// DispatchTable lists everything the dispatcher can reach.
type DispatchTable struct {
	Routes []Route
	Groups []RouteGroup
}

var routeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Dispatcher matches (method, canonicalPath) against the dispatch table. The
// table is built once; the underlying chi mux is never modified afterwards.
type Dispatcher struct {
	mux      *chi.Mux
	prefixes []string
	logger   *slog.Logger
}

type dispatchResult struct {
	err error
}

type dispatchResultKey struct{}

// NewDispatcher builds the dispatch table.
func NewDispatcher(table DispatchTable, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{mux: chi.NewRouter(), logger: logger}

	exact := make(map[string]bool, len(table.Routes))
	for _, rt := range table.Routes {
		method := strings.ToUpper(rt.Method)
		if !slices.Contains(routeMethods, method) {
			return nil, fmt.Errorf("route %s %s: unsupported method", rt.Method, rt.Path)
		}
		if !strings.HasPrefix(rt.Path, "/") {
			return nil, fmt.Errorf("route %s %s: path must start with /", method, rt.Path)
		}
		if rt.Handler == nil {
			return nil, fmt.Errorf("route %s %s: nil handler", method, rt.Path)
		}
		key := method + " " + rt.Path
		if exact[key] {
			return nil, fmt.Errorf("route %s: registered twice", key)
		}
		exact[key] = true
		d.mux.Method(method, rt.Path, d.adapt(rt.Handler))
	}

	// GET routes answer HEAD unless HEAD was registered explicitly.
	for _, rt := range table.Routes {
		if strings.ToUpper(rt.Method) != http.MethodGet || exact[http.MethodHead+" "+rt.Path] {
			continue
		}
		d.mux.Method(http.MethodHead, rt.Path, d.adapt(rt.Handler))
	}

	for _, g := range table.Groups {
		prefix := trimTrailingSlash(g.Prefix)
		if !strings.HasPrefix(prefix, "/") || prefix == "/" {
			return nil, fmt.Errorf("route group %q: prefix must be a non-root path", g.Prefix)
		}
		if g.Handler == nil {
			return nil, fmt.Errorf("route group %s: nil handler", prefix)
		}
		if slices.Contains(d.prefixes, prefix) {
			return nil, fmt.Errorf("route group %s: registered twice", prefix)
		}
		h := d.adapt(g.Handler)
		d.mux.Handle(prefix, h)
		d.mux.Handle(prefix+"/*", h)
		d.prefixes = append(d.prefixes, prefix)
	}

	groups := slices.Clone(d.prefixes)
	for _, rt := range table.Routes {
		if !slices.Contains(d.prefixes, rt.Path) && !underAny(rt.Path, groups) {
			d.prefixes = append(d.prefixes, rt.Path)
		}
	}

	d.mux.NotFound(d.notFound)
	d.mux.MethodNotAllowed(d.notFound)

	return d, nil
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if domain.HasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// KnownPrefixes returns the group prefixes followed by exact routes outside
// any group, in registration order.
func (d *Dispatcher) KnownPrefixes() []string {
	return slices.Clone(d.prefixes)
}

// Walk visits every registered (method, pattern).
func (d *Dispatcher) Walk(fn func(method, pattern string) error) error {
	return chi.Walk(d.mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		return fn(method, route)
	})
}

// Dispatch routes r on rc.CanonicalPath. It returns the envelope to send when
// no handler matched or the handler failed before writing anything; nil means
// the response has been written.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) *domain.ErrorEnvelope {
	res := &dispatchResult{}
	ctx := context.WithValue(WithRequestContext(r.Context(), rc), dispatchResultKey{}, res)
	// An enclosing chi router leaves its route context behind; the inner mux
	// must route on the canonical path, not on the outer RoutePath.
	rctx := chi.NewRouteContext()
	rctx.Routes = d.mux
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

	req := r.Clone(ctx)
	req.URL.Path = rc.CanonicalPath
	req.URL.RawPath = ""
	req.RequestURI = rc.URI()

	tw := &trackingWriter{ResponseWriter: w, extra: rc.ResponseHeader}
	d.mux.ServeHTTP(tw, req)

	if res.err == nil {
		return nil
	}

	env := Envelope(res.err)
	if tw.wroteHeader {
		d.logger.ErrorContext(ctx, "handler failed after response started",
			slog.String("request_id", rc.RequestID),
			slog.String("path", rc.CanonicalPath),
			slog.String("error", res.err.Error()),
		)
		return nil
	}
	return env
}

func (d *Dispatcher) adapt(h ports.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, _ := r.Context().Value(dispatchResultKey{}).(*dispatchResult)
		rc, ok := RequestContextFrom(r.Context())
		if res == nil || !ok {
			http.Error(w, "dispatcher used outside the pipeline", http.StatusInternalServerError)
			return
		}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				d.logger.ErrorContext(r.Context(), "handler panic",
					slog.String("request_id", rc.RequestID),
					slog.String("path", rc.CanonicalPath),
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())),
				)
				if err, isErr := p.(error); isErr {
					res.err = fmt.Errorf("panic: %w", err)
				} else {
					res.err = fmt.Errorf("panic: %v", p)
				}
			}
		}()

		if err := h.ServeIngress(w, r, rc); err != nil {
			res.err = err
		}
	}
}

func (d *Dispatcher) notFound(w http.ResponseWriter, r *http.Request) {
	res, _ := r.Context().Value(dispatchResultKey{}).(*dispatchResult)
	rc, ok := RequestContextFrom(r.Context())
	if res == nil || !ok {
		http.NotFound(w, r)
		return
	}

	env := domain.ErrRouteNotFound(rc.Method, rc.OriginalPath, d.KnownPrefixes())
	if rc.Rewritten() {
		env.WithContext("canonicalPath", rc.CanonicalPath)
	}
	res.err = env
}

// trackingWriter applies stage-computed headers before the first byte and
// records whether the handler started the response.
type trackingWriter struct {
	http.ResponseWriter
	extra       http.Header
	wroteHeader bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	if !tw.wroteHeader && code >= http.StatusOK {
		applyHeaders(tw.ResponseWriter.Header(), tw.extra)
		tw.wroteHeader = true
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Flush() {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}
