package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/middleware"
	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/service"
)

// Credentials is the Token Manager surface used by AuthHandler.
type Credentials interface {
	IssueToken(ctx context.Context, login, password string, client model.Client) (service.TokenInfo, error)
	ValidateToken(ctx context.Context, token string, client model.Client) (model.Token, error)
	Info(tok model.Token) service.TokenInfo
	UpdatePassword(ctx context.Context, userID uint64, oldPass, newPass, confirm string, client model.Client) (service.PasswordChange, error)
	RevokeToken(ctx context.Context, tokenID uint64) error
}

// AuthHandler bundles dependencies for the session endpoints.
type AuthHandler struct {
	Creds Credentials
	Log   *zap.Logger
}

func NewAuthHandler(creds Credentials, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Creds: creds, Log: log}
}

// ----- DTOs -----

type tokenReq struct {
	User string `json:"user" form:"user"`
	Pass string `json:"pass" form:"pass"`
}

type updateReq struct {
	OldPass   string `json:"oldpass" form:"oldpass"`
	NewPass   string `json:"newpass" form:"newpass"`
	RenewPass string `json:"renewpass" form:"renewpass"`
}

type tokenResp struct {
	Status string `json:"status"`
	service.TokenInfo
}

type updateResp struct {
	Status string `json:"status"`
	service.PasswordChange
}

var ko = echo.Map{"status": "ko"}

// Token exchanges a login and password for a session token. Every
// credential failure answers {status: ko} with 200.
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, ko)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	info, err := h.Creds.IssueToken(ctx, strings.TrimSpace(req.User), req.Pass, middleware.ClientOf(c))
	if errors.Is(err, service.ErrDenied) {
		return c.JSON(http.StatusOK, ko)
	}
	if err != nil {
		return fail(c, h.Log, "issue token", err)
	}
	return c.JSON(http.StatusOK, tokenResp{Status: "ok", TokenInfo: info})
}

// Check reports whether the presented token is valid without renewing it.
func (h *AuthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tok, err := h.Creds.ValidateToken(ctx, middleware.TokenFromRequest(c), middleware.ClientOf(c))
	if errors.Is(err, service.ErrDenied) {
		return c.JSON(http.StatusOK, ko)
	}
	if err != nil {
		return fail(c, h.Log, "check token", err)
	}
	return c.JSON(http.StatusOK, tokenResp{Status: "ok", TokenInfo: h.Creds.Info(tok)})
}

// Update rotates the caller's password. Rejections answer 400 with the
// reason; on success every session of the user ends.
func (h *AuthHandler) Update(c echo.Context) error {
	var req updateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Creds.UpdatePassword(ctx, middleware.UserID(c), req.OldPass, req.NewPass, req.RenewPass, middleware.ClientOf(c))
	if err != nil {
		return fail(c, h.Log, "update password", err)
	}
	return c.JSON(http.StatusOK, updateResp{Status: "ok", PasswordChange: res})
}

// Logout revokes the token that authenticated the request.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, _ := c.Get(middleware.CtxTokenID).(uint64)
	if id == 0 {
		return c.JSON(http.StatusUnauthorized, ko)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Creds.RevokeToken(ctx, id); err != nil {
		return fail(c, h.Log, "logout", err)
	}
	return c.NoContent(http.StatusNoContent)
}
