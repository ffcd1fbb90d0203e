package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinicscore/drug-advisor/internal/gateway"
	"github.com/clinicscore/drug-advisor/internal/services"
	"github.com/clinicscore/drug-advisor/internal/utils"
	"github.com/clinicscore/drug-advisor/internal/workflow"
)

// Handler serves the browser-facing JSON API.
type Handler struct {
	sessions *services.SessionService
	logger   *slog.Logger
	ready    func() bool
}

// NewHandler constructs a Handler. ready reports whether the environment has
// answered at least once; nil means always ready.
func NewHandler(sessions *services.SessionService, logger *slog.Logger, ready func() bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{sessions: sessions, logger: logger, ready: ready}
}

type selectRequest struct {
	ID string `json:"id" binding:"required"`
}

type feedbackRequest struct {
	Label string `json:"label" binding:"required"`
}

type sessionResponse struct {
	SessionID string        `json:"sessionId,omitempty"`
	View      workflow.View `json:"view"`
	Alerts    []string      `json:"alerts,omitempty"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind,omitempty"`
	View  *workflow.View `json:"view,omitempty"`
}

// Router wires the API routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.health)

	api := r.Group("/api")
	{
		api.GET("/patients", h.listPatients)
		api.POST("/sessions", h.createSession)

		session := api.Group("/sessions/:id")
		{
			session.GET("", h.getSession)
			session.DELETE("", h.deleteSession)
			session.PUT("/deployment", h.selectDeployment)
			session.PUT("/patient", h.selectPatient)
			session.POST("/predictions", h.requestPrediction)
			session.POST("/feedback", h.submitFeedback)
			session.POST("/reset", h.reset)
		}
	}
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

func (h *Handler) health(c *gin.Context) {
	if !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_SERVING"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "SERVING", "sessions": h.sessions.Len()})
}

func (h *Handler) listPatients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patients": h.sessions.Patients()})
}

func (h *Handler) createSession(c *gin.Context) {
	session := h.sessions.Create()
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: session.ID,
		View:      session.Controller.View(),
	})
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		View:   session.Controller.View(),
		Alerts: session.DrainAlerts(),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		h.writeError(c, nil, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectDeployment(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Deployment id is required."})
		return
	}
	h.run(c, "select deployment", func(_ context.Context, ctrl *workflow.Controller) error {
		return ctrl.SelectDeployment(req.ID)
	})
}

func (h *Handler) selectPatient(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Patient id is required."})
		return
	}
	h.run(c, "select patient", func(ctx context.Context, ctrl *workflow.Controller) error {
		return ctrl.SelectPatient(ctx, req.ID)
	})
}

func (h *Handler) requestPrediction(c *gin.Context) {
	h.run(c, "request prediction", func(ctx context.Context, ctrl *workflow.Controller) error {
		return ctrl.RequestPrediction(ctx)
	})
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Feedback label is required."})
		return
	}
	h.run(c, "request feedback", func(ctx context.Context, ctrl *workflow.Controller) error {
		return ctrl.RequestFeedback(ctx, req.Label)
	})
}

func (h *Handler) reset(c *gin.Context) {
	h.run(c, "reset", func(_ context.Context, ctrl *workflow.Controller) error {
		ctrl.Reset()
		return nil
	})
}

// run applies op to the session and answers with the resulting view. Alerts
// raised by op are answered inline rather than queued.
func (h *Handler) run(c *gin.Context, op string, fn func(ctx context.Context, ctrl *workflow.Controller) error) {
	session, err := h.sessions.Do(c.Request.Context(), c.Param("id"), op, fn)
	if session == nil {
		h.writeError(c, nil, err)
		return
	}
	view := session.Controller.View()
	if err != nil {
		session.DrainAlerts()
		h.writeError(c, &view, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{View: view, Alerts: session.DrainAlerts()})
}

func (h *Handler) writeError(c *gin.Context, view *workflow.View, err error) {
	status, kind := statusFor(err)
	msg := utils.UserMessage(err)
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, workflow.ErrClosed):
		msg = "Session not found."
	case errors.Is(err, workflow.ErrSuperseded):
		msg = "The selection changed before the prediction arrived."
	}
	c.JSON(status, errorResponse{Error: msg, Kind: kind, View: view})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, workflow.ErrClosed):
		return http.StatusNotFound, "session"
	case errors.Is(err, workflow.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, workflow.ErrUnknownDeployment),
		errors.Is(err, workflow.ErrUnknownPatient),
		errors.Is(err, workflow.ErrUnknownLabel),
		errors.Is(err, workflow.ErrDeploymentIneligible):
		return http.StatusUnprocessableEntity, "precondition"
	case workflow.IsPrecondition(err):
		return http.StatusConflict, "precondition"
	}
	switch gateway.KindOf(err) {
	case gateway.KindUnavailable:
		return http.StatusServiceUnavailable, string(gateway.KindUnavailable)
	case gateway.KindService, gateway.KindTransport, gateway.KindMalformed:
		return http.StatusBadGateway, string(gateway.KindOf(err))
	}
	return http.StatusInternalServerError, "internal"
}
