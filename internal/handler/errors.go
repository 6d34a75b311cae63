package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/matrix"
	"github.com/iliyamo/authledger/internal/repository"
	"github.com/iliyamo/authledger/internal/schema"
	"github.com/iliyamo/authledger/internal/service"
)

// badRequest is a malformed request detected by the handler itself.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// fail maps service errors to responses. Anything unclassified becomes a
// 500 whose reference code is also logged.
func fail(c echo.Context, log *zap.Logger, op string, err error) error {
	var (
		authErr *service.AuthError
		valErr  *matrix.ValidationError
		intErr  *service.InternalError
		bad     badRequest
	)
	switch {
	case errors.As(err, &bad):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": string(bad)})
	case errors.As(err, &intErr):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "ref": intErr.Code})
	case errors.Is(err, service.ErrDenied):
		return c.JSON(http.StatusUnauthorized, echo.Map{"status": "ko"})
	case errors.As(err, &authErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": authErr.Msg})
	case errors.As(err, &valErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": valErr.Error(), "field": valErr.Field})
	case errors.Is(err, schema.ErrUnknownApp), errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidField):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrVersionExists), errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	ie := service.Internal(log, op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "ref": ie.Code})
}
