package handlers

import (
	"io"
	"net/http"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"portfolio_bridge/internal/aggregation"
	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/heartbeat"
	"portfolio_bridge/internal/session"
)

const qrSize = 256

// SessionHandler exposes session state and the login webview bridge.
type SessionHandler struct {
	registry  *broker.Registry
	store     *session.Store
	extractor *session.Extractor
	heartbeat *heartbeat.Monitor
	engine    *aggregation.Engine
	outbox    *ScriptOutbox
	logger    *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(deps *Dependencies, outbox *ScriptOutbox) *SessionHandler {
	return &SessionHandler{
		registry:  deps.Registry,
		store:     deps.Store,
		extractor: deps.Extractor,
		heartbeat: deps.Heartbeat,
		engine:    deps.Aggregation,
		outbox:    outbox,
		logger:    deps.Logger,
	}
}

// List returns every stored session's status.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Status())
}

// ClearAll disconnects every provider.
func (h *SessionHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.heartbeat.StopAll()
	h.store.ClearAll()
	h.engine.InvalidateCache()
	h.logger.Info("all sessions cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Clear disconnects one provider.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.heartbeat.Stop(p)
	h.store.Clear(p)
	h.engine.InvalidateCache()
	h.logger.Info("session cleared", zap.String("provider", string(p)))
	w.WriteHeader(http.StatusNoContent)
}

type navigationRequest struct {
	URL     string `json:"url"`
	Cookies string `json:"cookies"`
	Force   bool   `json:"force"`
}

type navigationResponse struct {
	LoginSuccess bool                  `json:"login_success"`
	Status       session.ExtractStatus `json:"status"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	HasTokens    bool                  `json:"has_tokens"`
}

// Navigation reports a login webview navigation. Once the page is inside the
// provider's authenticated area, it blocks while the extraction script is
// collected from /script and its reply arrives on /messages.
func (h *SessionHandler) Navigation(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req navigationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.URL == "" && !req.Force {
		writeError(w, h.logger, apperrors.ValidationField("url", "url is required"))
		return
	}

	browser := &outboxBrowser{outbox: h.outbox, provider: p, cookies: req.Cookies}
	result, err := h.extractor.Extract(r.Context(), p, browser, req.URL, req.Force)
	h.outbox.Take(p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := navigationResponse{
		LoginSuccess: result.Status != session.StatusNotReady,
		Status:       result.Status,
	}
	if result.Session != nil {
		expires := result.Session.ExpiresAt
		resp.ExpiresAt = &expires
		resp.HasTokens = result.Session.HasTokens()
		h.engine.InvalidateCache()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Script hands the pending extraction script to the login webview.
func (h *SessionHandler) Script(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	script, ok := h.outbox.Take(p)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = io.WriteString(w, script)
}

// Messages accepts one message posted by the login webview.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, h.logger, apperrors.Validation("reading request body"))
		return
	}
	msg, err := session.ParseMessage(body)
	if err != nil {
		writeError(w, h.logger, apperrors.Validation(err.Error()))
		return
	}

	outcome, err := h.extractor.HandleMessage(p, msg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if outcome.Applied {
		h.engine.InvalidateCache()
	}
	writeJSON(w, http.StatusOK, outcome)
}

// LoginQR renders the provider's login URL as a PNG QR code.
func (h *SessionHandler) LoginQR(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	adapter, err := h.registry.Get(p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	png, err := qrcode.Encode(adapter.LoginURL(), qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = w.Write(png)
}
