package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/service"
)

// Context keys set by TokenAuth for downstream handlers.
const (
	CtxUserID  = "user_id"
	CtxTokenID = "token_id"
	CtxToken   = "token"
)

// TokenValidator is the part of the Token Manager the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string, client model.Client) (model.Token, error)
	RenewOrExpire(ctx context.Context, tok model.Token) (model.Token, error)
}

// TokenFromRequest reads the opaque token from the Token header, falling
// back to an Authorization bearer value.
func TokenFromRequest(c echo.Context) string {
	h := c.Request().Header
	if tok := strings.TrimSpace(h.Get("Token")); tok != "" {
		return tok
	}
	auth := h.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// ClientOf describes the caller of the current request.
func ClientOf(c echo.Context) model.Client {
	return model.Client{RemoteAddr: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// TokenAuth rejects requests without a valid token and silently renews
// the token of those that pass. The validated token row is stored in the
// context under CtxToken, with its ids under CtxUserID and CtxTokenID.
func TokenAuth(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			tok, err := v.ValidateToken(ctx, TokenFromRequest(c), ClientOf(c))
			if err == nil {
				tok, err = v.RenewOrExpire(ctx, tok)
			}
			if err != nil {
				return authFailure(c, err)
			}
			c.Set(CtxUserID, tok.UserID)
			c.Set(CtxTokenID, tok.ID)
			c.Set(CtxToken, tok)
			return next(c)
		}
	}
}

func authFailure(c echo.Context, err error) error {
	var ie *service.InternalError
	if errors.As(err, &ie) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "ref": ie.Code})
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{"status": "ko"})
}

// UserID returns the authenticated user set by TokenAuth, or 0.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(CtxUserID).(uint64)
	return id
}

// CurrentToken returns the token row set by TokenAuth.
func CurrentToken(c echo.Context) (model.Token, bool) {
	tok, ok := c.Get(CtxToken).(model.Token)
	return tok, ok
}
