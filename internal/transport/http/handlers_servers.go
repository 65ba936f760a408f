package httptransport

import (
	"net/http"

	"match-gateway/internal/platform/middleware"
	"match-gateway/internal/trust"
	dErrors "match-gateway/pkg/domain-errors"
	"match-gateway/pkg/platform/httputil"
)

// serverView is a trust entry with its secret stripped.
type serverView struct {
	ServerID  string          `json:"server_id"`
	Label     string          `json:"server_label"`
	Direction trust.Direction `json:"direction"`
	BaseURL   string          `json:"base_url,omitempty"`
}

// handleListServers lists the configured authorizations without their keys.
// ?direction=in|out narrows the listing.
func (h *Handler) handleListServers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	direction := trust.Direction(r.URL.Query().Get("direction"))
	if direction != "" && !direction.Valid() {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest,
			"direction must be %q or %q", trust.DirectionIn, trust.DirectionOut))
		return
	}

	entries, err := h.servers.List(ctx, direction)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list servers",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list servers"))
		return
	}

	views := make([]serverView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, serverView{
			ServerID:  entry.ServerID,
			Label:     entry.Label,
			Direction: entry.Direction,
			BaseURL:   entry.BaseURL,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"servers": views})
}
