package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/internal/constants"
	"herald/internal/logger"
	"herald/pkg/errors"
	"herald/pkg/health"
	"herald/pkg/models"
)

// DeadLetterPeeker reads dead-lettered records without consuming them.
type DeadLetterPeeker interface {
	Peek(ctx context.Context, limit int) (models.DeadLetterList, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Health
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	health      HealthChecker
	deadLetters DeadLetterPeeker
}

// NewHandler builds the ops handler. deadLetters may be nil when no
// dead-letter queue is configured.
func NewHandler(checker HealthChecker, deadLetters DeadLetterPeeker, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		health:      checker,
		deadLetters: deadLetters,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, api ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", api...)
	{
		v1.GET("/dead-letters", h.ListDeadLetters)
	}
}

func (h *Handler) Health(c *gin.Context) {
	result := h.health.Check(c.Request.Context())

	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

func (h *Handler) ListDeadLetters(c *gin.Context) {
	if h.deadLetters == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithMessage("dead-letter queue is not configured"))
		return
	}

	limit := constants.DefaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > constants.MaxDeadLetterLimit {
			h.HandleError(c, errors.ErrValidation.
				WithMessage("limit must be an integer between 1 and 10").
				WithDetail("limit", raw))
			return
		}
		limit = n
	}

	list, err := h.deadLetters.Peek(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, errors.Wrap(err, errors.ErrServiceUnavailable))
		return
	}

	c.JSON(http.StatusOK, list)
}
