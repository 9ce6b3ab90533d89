package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/middleware"
	"portfolio_bridge/internal/models"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Error    string          `json:"error"`
	Provider models.Provider `json:"provider,omitempty"`
	Upstream int             `json:"upstream_status,omitempty"`
	Details  map[string]any  `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status. Internal errors are logged and
// their text is not exposed.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	resp := errorResponse{Error: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Provider = appErr.Provider
		resp.Upstream = appErr.Status
		resp.Details = appErr.Details
	}

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		logger.Error("request failed", zap.Error(err))
		resp = errorResponse{Error: "internal error"}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return apperrors.Validation("reading request body")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Validation("invalid JSON body")
	}
	return nil
}

func providerParam(r *http.Request) (models.Provider, error) {
	p := models.Provider(chi.URLParam(r, "provider"))
	if !p.Valid() {
		return "", apperrors.NotFound("provider " + string(p))
	}
	return p, nil
}

func symbolParam(r *http.Request) (string, error) {
	symbol, ok := middleware.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if !ok {
		return "", apperrors.ValidationField("symbol", "invalid symbol")
	}
	return symbol, nil
}

// providerAndSymbol reads both path parameters, reporting every invalid one.
func providerAndSymbol(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.Provider, string, bool) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, logger, err)
		return "", "", false
	}
	symbol, err := symbolParam(r)
	if err != nil {
		var v middleware.ValidationErrors
		v.Add("symbol", "invalid symbol")
		v.WriteJSON(w)
		return "", "", false
	}
	return p, symbol, true
}
