package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"go.uber.org/zap"
)

type Handler struct {
	collector *Collector
	logger    *zap.Logger
}

func NewHandler(collector *Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{collector: collector, logger: logger}
}

// Register mounts GET /storage on a group already gated to admins.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/storage", h.Storage)
}

func (h *Handler) Storage(c *gin.Context) {
	snap, err := h.collector.Collect(c.Request.Context())
	if err != nil {
		h.logger.Error("collect storage snapshot", zap.Error(err))
		apierrors.Fail(c, http.StatusInternalServerError, apierrors.MsgInternalError, "")
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgStorageStats, snap)
}
