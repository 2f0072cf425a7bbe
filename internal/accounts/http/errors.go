package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{domain.ErrUserNotFound, http.StatusNotFound, apierrors.MsgUserNotFound},
	{domain.ErrRegistrationNotFound, http.StatusNotFound, apierrors.MsgRegistrationExpired},
	{domain.ErrEmailTaken, http.StatusConflict, apierrors.MsgEmailTaken},
	{domain.ErrIdentifierTaken, http.StatusConflict, apierrors.MsgIdentifierTaken},
	{domain.ErrInvalidTransition, http.StatusConflict, apierrors.MsgInvalidTransition},
	{domain.ErrHasDependents, http.StatusConflict, apierrors.MsgUserHasDependents},
	{domain.ErrInvalidOTP, http.StatusBadRequest, apierrors.MsgInvalidOTP},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, apierrors.MsgTooManyAttempts},
	{domain.ErrResendTooSoon, http.StatusTooManyRequests, apierrors.MsgResendTooSoon},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, apierrors.MsgInvalidCredentials},
	{domain.ErrNotVerified, http.StatusForbidden, apierrors.MsgNotVerified},
	{domain.ErrAwaitingApproval, http.StatusForbidden, apierrors.MsgAwaitingApproval},
	{domain.ErrAccountDeclined, http.StatusForbidden, apierrors.MsgAccountDeclined},
	{domain.ErrAccountBlocked, http.StatusForbidden, apierrors.MsgAccountBlocked},
	{domain.ErrForbidden, http.StatusForbidden, apierrors.MsgForbidden},
}

// respondError maps service errors onto the envelope. Unknown errors are
// logged and reported as 500 without detail.
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
	h.logger.Error("accounts request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	apierrors.Fail(c, http.StatusInternalServerError, apierrors.MsgInternalError, "")
}
