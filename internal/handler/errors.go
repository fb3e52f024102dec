package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contenthub/internal/service/achievement"
	"contenthub/internal/service/auth"
	"contenthub/internal/service/comic"
	"contenthub/internal/service/couplet"
	"contenthub/internal/service/menu"
	"contenthub/internal/service/points"
	"contenthub/internal/service/redeem"
	"contenthub/internal/service/role"
	"contenthub/pkg/outbox"
	"contenthub/pkg/rbac"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{comic.ErrVIPRequired, http.StatusForbidden},

	{auth.ErrUserNotFound, http.StatusNotFound},
	{points.ErrUserNotFound, http.StatusNotFound},
	{redeem.ErrUserNotFound, http.StatusNotFound},
	{comic.ErrNotFound, http.StatusNotFound},
	{couplet.ErrNotFound, http.StatusNotFound},
	{couplet.ErrVersionNotFound, http.StatusNotFound},
	{redeem.ErrCodeNotFound, http.StatusNotFound},
	{menu.ErrNotFound, http.StatusNotFound},
	{role.ErrNotFound, http.StatusNotFound},
	{achievement.ErrNotFound, http.StatusNotFound},
	{outbox.ErrEventNotFound, http.StatusNotFound},

	{auth.ErrEmailTaken, http.StatusConflict},
	{comic.ErrSlugTaken, http.StatusConflict},
	{comic.ErrNumberTaken, http.StatusConflict},
	{couplet.ErrSlugTaken, http.StatusConflict},
	{couplet.ErrConcurrentEdit, http.StatusConflict},
	{redeem.ErrCodeExhausted, http.StatusConflict},
	{redeem.ErrAlreadyRedeemed, http.StatusConflict},
	{redeem.ErrCodeInUse, http.StatusConflict},
	{points.ErrAlreadyCheckedIn, http.StatusConflict},
	{achievement.ErrCodeTaken, http.StatusConflict},
	{menu.ErrKeyTaken, http.StatusConflict},
	{role.ErrRoleExists, http.StatusConflict},

	{redeem.ErrCodeDisabled, http.StatusGone},
	{redeem.ErrCodeExpired, http.StatusGone},

	{auth.ErrInvalidEmail, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrPasswordTooLong, http.StatusBadRequest},
	{auth.ErrInvalidReferral, http.StatusBadRequest},
	{auth.ErrNicknameTooLong, http.StatusBadRequest},
	{comic.ErrTitleRequired, http.StatusBadRequest},
	{comic.ErrInvalidStatus, http.StatusBadRequest},
	{comic.ErrInvalidNumber, http.StatusBadRequest},
	{comic.ErrInvalidOrder, http.StatusBadRequest},
	{comic.ErrInvalidPage, http.StatusBadRequest},
	{comic.ErrInvalidPanel, http.StatusBadRequest},
	{couplet.ErrTitleRequired, http.StatusBadRequest},
	{couplet.ErrEmptyContents, http.StatusBadRequest},
	{couplet.ErrEmptyLine, http.StatusBadRequest},
	{couplet.ErrLineMismatch, http.StatusBadRequest},
	{redeem.ErrInvalidBatch, http.StatusBadRequest},
	{redeem.ErrInvalidUpdate, http.StatusBadRequest},
	{menu.ErrParentNotFound, http.StatusBadRequest},
	{menu.ErrCycle, http.StatusBadRequest},
	{menu.ErrInvalidKey, http.StatusBadRequest},
	{menu.ErrUnknownPermission, http.StatusBadRequest},
	{menu.ErrInvalidLocale, http.StatusBadRequest},
	{role.ErrInvalidName, http.StatusBadRequest},
	{role.ErrUnknownPermission, http.StatusBadRequest},
	{achievement.ErrInvalid, http.StatusBadRequest},
	{points.ErrZeroDelta, http.StatusBadRequest},
	{points.ErrReasonRequired, http.StatusBadRequest},
	{points.ErrInsufficientPoints, http.StatusBadRequest},
}

// StatusFor 未识别的错误一律 500
func StatusFor(err error) int {
	var denied *rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError 写 {"error": msg}；500 不向客户端暴露内部错误
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
