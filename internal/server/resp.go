package server

import (
	"errors"
	"net/http"

	"foodrun/internal/domain"
	"foodrun/internal/logger"
	"foodrun/internal/usecase"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"ok": true, "data": data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg, "code": code})
}

func writeErr(c *gin.Context, err error) {
	var (
		notFound     usecase.ErrNotFound
		badRequest   usecase.ErrBadRequest
		conflict     usecase.ErrConflict
		unauthorized usecase.ErrUnauthorized
	)
	switch {
	case errors.As(err, &notFound):
		fail(c, http.StatusNotFound, domain.CodeNotFound, err.Error())
	case errors.As(err, &badRequest):
		fail(c, http.StatusBadRequest, domain.CodeBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		fail(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		fail(c, http.StatusUnprocessableEntity, domain.CodeIllegalTransition, err.Error())
	case errors.Is(err, domain.ErrStaleState):
		fail(c, http.StatusConflict, domain.CodeStaleState, err.Error())
	case errors.Is(err, domain.ErrActiveOrder):
		fail(c, http.StatusConflict, domain.CodeActiveOrder, err.Error())
	case errors.Is(err, domain.ErrAuthExpired):
		fail(c, http.StatusUnauthorized, domain.CodeAuthExpired, err.Error())
	case errors.Is(err, domain.ErrForbiddenRole):
		fail(c, http.StatusForbidden, domain.CodeForbidden, err.Error())
	case errors.As(err, &conflict):
		fail(c, http.StatusConflict, domain.CodeConflict, err.Error())
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", "action", "http_error", "error", err)
		fail(c, http.StatusInternalServerError, domain.CodeInternal, "internal error")
	}
}
