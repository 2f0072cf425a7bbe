package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{domain.ErrProjectNotFound, http.StatusNotFound, apierrors.MsgProjectNotFound},
	{domain.ErrBoardNotFound, http.StatusNotFound, apierrors.MsgBoardNotFound},
	{domain.ErrColumnNotFound, http.StatusNotFound, apierrors.MsgColumnNotFound},
	{domain.ErrTaskNotFound, http.StatusNotFound, apierrors.MsgTaskNotFound},
	{domain.ErrCommentNotFound, http.StatusNotFound, apierrors.MsgCommentNotFound},
	{domain.ErrForbidden, http.StatusForbidden, apierrors.MsgForbidden},
	{domain.ErrCrossBoardMove, http.StatusBadRequest, apierrors.MsgCrossBoardMove},
	{domain.ErrInvalidOrder, http.StatusBadRequest, apierrors.MsgInvalidOrder},
	{domain.ErrStaleSource, http.StatusConflict, apierrors.MsgConflict},
	{domain.ErrWIPLimitReached, http.StatusConflict, apierrors.MsgWIPLimitReached},
	{domain.ErrProjectKeyTaken, http.StatusConflict, apierrors.MsgProjectKeyTaken},
	{domain.ErrColumnNotEmpty, http.StatusConflict, apierrors.MsgColumnNotEmpty},
	{domain.ErrBoardArchived, http.StatusConflict, apierrors.MsgBoardArchived},
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgValidationFailed, verr.Error())
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			apierrors.Fail(c, e.status, e.msg, e.err.Error())
			return
		}
	}
	h.logger.Error("kanban request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	apierrors.Fail(c, http.StatusInternalServerError, apierrors.MsgInternalError, "")
}
