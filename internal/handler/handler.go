package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/config"
	"github.com/young1lin/agentsearch/internal/dispatcher"
	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/internal/render"
	"github.com/young1lin/agentsearch/internal/session"
	"github.com/young1lin/agentsearch/internal/ui"
	"github.com/young1lin/agentsearch/pkg/logger"
)

// sweepInterval bounds how often idle profiles are looked for
const sweepInterval = time.Minute

// profileState is the widget state kept for one browser profile
type profileState struct {
	ctrl     *ui.Controller
	lastSeen time.Time
}

// WidgetHandler serves the search widget and its JSON API
type WidgetHandler struct {
	config     *config.Config
	dispatcher ui.Dispatcher
	renderer   *render.Renderer
	now        func() time.Time

	mu        sync.Mutex
	profiles  map[string]*profileState
	lastSweep time.Time
}

// NewWidgetHandler creates a new widget handler
func NewWidgetHandler(cfg *config.Config, d ui.Dispatcher, r *render.Renderer) *WidgetHandler {
	return &WidgetHandler{
		config:     cfg,
		dispatcher: d,
		renderer:   r,
		now:        time.Now,
		profiles:   make(map[string]*profileState),
	}
}

// ServeHTTP handles all HTTP requests
func (h *WidgetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	traceID := extractTraceID(r)
	if traceID == "" {
		traceID = generateTraceID()
	}

	r = r.WithContext(logger.ContextWithTraceID(r.Context(), traceID))

	log := logger.WithTraceID(traceID)
	log.Info("request received",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("X-Trace-ID", traceID)

	switch r.URL.Path {
	case "/health":
		h.handleHealth(w, r, log)
	case "/api/search":
		h.handleAPISearch(w, r, log)
	case "/", "/search", "/retry", "/new", "/events":
		h.serveWidget(w, r, log)
	default:
		h.handleError(w, r, http.StatusNotFound, "not_found", "Endpoint not found", log)
	}

	log.Info("request completed",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// serveWidget handles the routes that act on a browser's widget state
func (h *WidgetHandler) serveWidget(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	profile, ok := h.cookieProfile(r)
	if !ok {
		profile = h.issueProfile(w)
	}
	r = r.WithContext(session.WithProfile(r.Context(), profile))

	switch r.URL.Path {
	case "/":
		h.handlePage(w, r, profile, log)
	case "/search":
		h.handleSubmit(w, r, profile, log)
	case "/retry":
		h.handleRetry(w, r, profile, log)
	case "/new":
		h.handleNewSearch(w, r, profile, log)
	case "/events":
		h.handleEvents(w, r, profile, log)
	}
}

// cookieProfile returns the profile named by a valid cookie
func (h *WidgetHandler) cookieProfile(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.config.Session.CookieName)
	if err != nil {
		return "", false
	}
	if _, err := xid.FromString(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// issueProfile creates a profile and sets its cookie
func (h *WidgetHandler) issueProfile(w http.ResponseWriter) string {
	id := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   h.config.Session.CookieMaxAgeDays * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// controller returns the controller owning the profile's widget state.
// Without create, a profile that has none yet gets nil.
func (h *WidgetHandler) controller(profile string, create bool) *ui.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.sweepLocked(now)

	p, ok := h.profiles[profile]
	if !ok {
		if !create {
			return nil
		}
		p = &profileState{ctrl: ui.NewController(&ui.Handles{}, h.dispatcher, h.renderer)}
		h.profiles[profile] = p
	}
	p.lastSeen = now
	return p.ctrl
}

// sweepLocked drops profiles idle for longer than the session idle TTL.
// A profile with a request in flight is kept.
func (h *WidgetHandler) sweepLocked(now time.Time) {
	ttl := h.config.Session.IdleTTL()
	if ttl <= 0 || now.Sub(h.lastSweep) < min(ttl, sweepInterval) {
		return
	}
	h.lastSweep = now

	for profile, p := range h.profiles {
		if now.Sub(p.lastSeen) < ttl || p.ctrl.Snapshot().Active == ui.StateLoading {
			continue
		}
		delete(h.profiles, profile)
		logger.Debug("idle profile evicted", zap.String("profile", profile))
	}
}

// handleHealth handles health check requests
func (h *WidgetHandler) handleHealth(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handlePage renders the widget in its current state
func (h *WidgetHandler) handlePage(w http.ResponseWriter, r *http.Request, profile string, log *zap.Logger) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.handleError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed", log)
		return
	}

	// nothing is kept for a browser until it submits a query
	var s ui.Handles
	if c := h.controller(profile, false); c != nil {
		s = c.Snapshot()
	}
	view := render.PageView{
		Active:        s.Active.String(),
		Query:         s.Query,
		InputDisabled: s.InputDisabled,
		Notice:        s.Notice,
		Results:       s.Results,
		EventsURL:     "/events",
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Page(w, view); err != nil {
		log.Error("failed to render page", zap.Error(err))
	}
}

// handleSubmit handles the search form (button click or Enter)
func (h *WidgetHandler) handleSubmit(w http.ResponseWriter, r *http.Request, profile string, log *zap.Logger) {
	if !h.requirePost(w, r, log) {
		return
	}

	_, err := h.controller(profile, true).Submit(r.Context(), r.PostFormValue("q"))
	switch {
	case errors.Is(err, ui.ErrEmptyQuery):
		log.Info("empty query rejected")
	case errors.Is(err, ui.ErrBusy):
		log.Info("submit ignored, request in flight")
	case err != nil:
		log.Error("submit failed", zap.Error(err))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleRetry re-issues the current query from the error panel
func (h *WidgetHandler) handleRetry(w http.ResponseWriter, r *http.Request, profile string, log *zap.Logger) {
	if !h.requirePost(w, r, log) {
		return
	}

	c := h.controller(profile, false)
	if c == nil {
		log.Info("retry ignored, no query yet")
	} else if _, err := c.Retry(r.Context()); err != nil {
		log.Info("retry ignored", zap.Error(err))
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleNewSearch clears the query and returns to the input state
func (h *WidgetHandler) handleNewSearch(w http.ResponseWriter, r *http.Request, profile string, log *zap.Logger) {
	if !h.requirePost(w, r, log) {
		return
	}

	if c := h.controller(profile, false); c != nil {
		c.NewSearch()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleAPISearch handles POST /api/search, a direct JSON rendition of a query
func (h *WidgetHandler) handleAPISearch(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if r.Method != http.MethodPost {
		h.handleError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", log)
		return
	}

	var req models.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		h.handleError(w, r, http.StatusBadRequest, "parse_error", fmt.Sprintf("Failed to parse request: %v", err), log)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		h.handleError(w, r, http.StatusBadRequest, "validation_error", ui.NoticeEmptyQuery, log)
		return
	}

	// API callers share a session id with their widget when they send its cookie
	ctx := r.Context()
	if profile, ok := h.cookieProfile(r); ok {
		ctx = session.WithProfile(ctx, profile)
	}

	items, err := h.dispatcher.Dispatch(ctx, query)
	if err != nil {
		h.handleDispatchError(w, err, log)
		return
	}

	log.Info("search completed", zap.Int("item_count", len(items)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.SearchResponse{Items: items})
}

// handleDispatchError maps a dispatcher error onto a gateway status
func (h *WidgetHandler) handleDispatchError(w http.ResponseWriter, err error, log *zap.Logger) {
	msg, code := dispatcher.UserMessage(err)
	kind := dispatcher.Kind(err)

	status := http.StatusBadGateway
	if errors.Is(err, dispatcher.ErrTimeout) {
		status = http.StatusGatewayTimeout
	}

	log.Warn("search failed",
		zap.String("error_type", kind),
		zap.Int("status", status),
		zap.Error(err),
	)

	detail := models.ErrorDetail{Type: kind, Message: msg}
	if code != 0 {
		detail.Code = fmt.Sprintf("%d", code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: detail})
}

func (h *WidgetHandler) requirePost(w http.ResponseWriter, r *http.Request, log *zap.Logger) bool {
	if r.Method != http.MethodPost {
		h.handleError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed", log)
		return false
	}
	return true
}

// handleError handles errors
func (h *WidgetHandler) handleError(w http.ResponseWriter, r *http.Request, status int, errType, message string, log *zap.Logger) {
	log.Error("request error",
		zap.String("error_type", errType),
		zap.String("message", message),
		zap.Int("status", status),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.ErrorDetail{
			Type:    errType,
			Message: message,
		},
	})
}

// extractTraceID extracts trace ID from various possible headers
func extractTraceID(r *http.Request) string {
	headers := []string{
		"X-Trace-ID",
		"X-Request-ID",
		"X-Correlation-ID",
		"Trace-ID",
		"Request-ID",
	}

	for _, header := range headers {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}

	return ""
}

// generateTraceID generates a new trace ID
func generateTraceID() string {
	id := uuid.New()
	return id.String()[:16]
}
