// Package http provides the HTTP transport adapter for the decision
// service.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sentinelpolicy/policygate/internal/service"
)

// maxRequestBodySize bounds how much of the body the decoder will read
// before erroring, independent of the configured payload ceiling (which is
// checked against the declared Content-Length first).
const maxRequestBodySize = 10 << 20 // 10 MiB hard ceiling

// decisionHandler routes POST /runtime-check to the DecisionService and
// handles the OPTIONS CORS preflight (spec §6). requestDeadline, when
// positive, bounds how long a single decision call is allowed to run
// before the request is failed with a 500 rather than hanging.
func decisionHandler(svc *service.DecisionService, maxPayloadBytes int64, requestDeadline time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			handleOptions(w, r)
		case http.MethodPost:
			handleDecide(w, r, svc, maxPayloadBytes, requestDeadline)
		default:
			writeDecisionError(w, http.StatusMethodNotAllowed, "INVALID_INPUT", "method not allowed", 0)
		}
	})
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "content-type, x-api-key")
}

func handleDecide(w http.ResponseWriter, r *http.Request, svc *service.DecisionService, maxPayloadBytes int64, requestDeadline time.Duration) {
	setCORSHeaders(w, r)
	logger := LoggerFromContext(r.Context())

	if r.ContentLength > maxPayloadBytes {
		writeDecisionError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body exceeds the configured limit", 0)
		return
	}

	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		writeDecisionError(w, http.StatusUnauthorized, "INVALID_API_KEY", "missing x-api-key header", 0)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req service.DecisionRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeDecisionError(w, http.StatusBadRequest, "INVALID_INPUT", "malformed JSON body", 0)
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	ctx := r.Context()
	if requestDeadline > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, requestDeadline)
		defer cancel()
	}

	resp, err := svc.Decide(ctx, apiKey, req)
	if err != nil {
		var decErr *service.DecisionError
		if errors.As(err, &decErr) {
			if decErr.RetryAfterSeconds > 0 {
				w.Header().Set("Retry-After", "60")
			}
			writeDecisionError(w, decErr.HTTPStatus, decErr.ErrorCode, decErr.Message, 0)
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeDecisionError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "decision exceeded the request deadline", 0)
			return
		}
		logger.Error("unhandled decision error", "error", err)
		writeDecisionError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", 0)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// decisionErrorBody is the uniform failure shape from spec §6/§7:
// {allowed:false, errorCode, decisionReasons, executionDurationMs}.
type decisionErrorBody struct {
	Allowed             bool                `json:"allowed"`
	ErrorCode           string              `json:"errorCode"`
	DecisionReasons     []service.ReasonDTO `json:"decisionReasons"`
	ExecutionDurationMs int64               `json:"executionDurationMs"`
}

func writeDecisionError(w http.ResponseWriter, status int, code, message string, durationMs int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(decisionErrorBody{
		Allowed:   false,
		ErrorCode: code,
		DecisionReasons: []service.ReasonDTO{
			{Code: code, Message: message},
		},
		ExecutionDurationMs: durationMs,
	})
}
