// Package http provides the HTTP transport for the runtime decision
// endpoint.
//
// # Usage
//
// Create and start an HTTP transport:
//
//	transport := http.NewHTTPTransport(decisionService,
//	    http.WithAddr(":8080"),
//	    http.WithTLS("cert.pem", "key.pem"),
//	    http.WithLogger(logger),
//	    http.WithHealthChecker(healthChecker),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST /runtime-check  - Evaluate a tool call against the published policy
//	OPTIONS /runtime-check - CORS preflight
//	GET /health          - Liveness/readiness check
//	GET /metrics         - Prometheus exposition
//
// # Request Headers
//
//	x-api-key: <api-key>            - Required, authenticates the caller
//	Content-Type: application/json  - Required for POST requests
//
// # Response Shape
//
// A successful decision returns 200 with
// {allowed, errorCode?, decisionReasons, policyVersionUsed, policyHash,
// stateBefore, stateAfter, counters, executionDurationMs}. Every failure
// response shares the shape {allowed:false, errorCode, decisionReasons,
// executionDurationMs}, with the HTTP status mapped from the error code
// (400 INVALID_INPUT, 401 INVALID_API_KEY/API_KEY_REVOKED, 404
// POLICY_NOT_FOUND, 413 PAYLOAD_TOO_LARGE, 429 RATE_LIMITED with a
// Retry-After header, 500 for internal/database failures).
package http
