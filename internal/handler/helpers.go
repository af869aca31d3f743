package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/middleware"
	"github.com/paperbase/paperbase/internal/pkg/errcode"
	appErr "github.com/paperbase/paperbase/internal/pkg/errors"
	"github.com/paperbase/paperbase/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrRetrieval):
		response.Error(c, errcode.ErrRetrieval, "retrieval failed")
	case errors.Is(err, appErr.ErrAgent):
		response.Error(c, errcode.ErrAgent, "agent failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
