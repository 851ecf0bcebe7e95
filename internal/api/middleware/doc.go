/*
Package middleware provides the outer HTTP middleware wrapped around the
ingress pipeline. These components never make routing or policy decisions;
they only attach request-scoped facilities.

# Middleware Components

## Request ID (requestid.go)

RequestIDMiddleware assigns a UUID to each request and adds it to:
  - The request context (accessible via GetRequestID)
  - The X-Request-ID response header

## Logging (logging.go)

LoggingMiddleware provides structured request logging using slog:
  - Logs request completion (method, path, status, bytes, duration)
  - Supports custom log fields via AddLogField/AddError

## Timeout (timeout.go)

TimeoutMiddleware enforces request timeouts:
  - Creates context with deadline
  - Body ingestion and upstream forwarding observe context cancellation

# Middleware Chain Order

 1. RequestIDMiddleware (first, to generate request IDs)
 2. LoggingMiddleware (logs all requests)
 3. TimeoutMiddleware (enforces timeouts)
 4. OTel instrumentation (OpenTelemetry)

# Example Usage

	handler := chi.Chain(
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(logger),
		middleware.TimeoutMiddleware(30*time.Second),
	).Handler(executor)
*/
package middleware
