package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/middleware"
	"github.com/iliyamo/authledger/internal/model"
)

// Versions is the Version/Audit Engine surface used by VersionHandler.
type Versions interface {
	MakeVersion(ctx context.Context, app string, id, userID uint64) (model.VersionState, error)
	AddVersion(ctx context.Context, app string, id, userID uint64) (model.VersionState, bool, error)
	GetVersion(ctx context.Context, app string, id uint64, seq int) (model.VersionState, error)
	History(ctx context.Context, app string, id uint64) ([]model.VersionState, error)
}

// VersionHandler exposes entity audit trails.
type VersionHandler struct {
	Versions Versions
	Log      *zap.Logger
}

func NewVersionHandler(v Versions, log *zap.Logger) *VersionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VersionHandler{Versions: v, Log: log}
}

type versionResp struct {
	Status  string             `json:"status"`
	Created bool               `json:"created"`
	Version model.VersionState `json:"version"`
}

// entityParams reads :app and :id; id must be a positive integer.
func entityParams(c echo.Context) (string, uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return "", 0, badRequest("invalid id")
	}
	return c.Param("app"), id, nil
}

// List returns every version of the entity with its rebuilt state.
func (h *VersionHandler) List(c echo.Context) error {
	app, id, err := entityParams(c)
	if err != nil {
		return fail(c, h.Log, "entity params", err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	trail, err := h.Versions.History(ctx, app, id)
	if err != nil {
		return fail(c, h.Log, "list versions", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "versions": trail})
}

// Get returns the entity as of version :seq, clamped to the latest.
func (h *VersionHandler) Get(c echo.Context) error {
	app, id, err := entityParams(c)
	if err != nil {
		return fail(c, h.Log, "entity params", err)
	}
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid version"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v, err := h.Versions.GetVersion(ctx, app, id, seq)
	if err != nil {
		return fail(c, h.Log, "get version", err)
	}
	return c.JSON(http.StatusOK, versionResp{Status: "ok", Version: v})
}

// Add records the entity's current state. 201 means a version was
// written, 200 that the state matched the latest one.
func (h *VersionHandler) Add(c echo.Context) error {
	app, id, err := entityParams(c)
	if err != nil {
		return fail(c, h.Log, "entity params", err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v, created, err := h.Versions.AddVersion(ctx, app, id, middleware.UserID(c))
	if err != nil {
		return fail(c, h.Log, "add version", err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, versionResp{Status: "ok", Created: created, Version: v})
}

// Baseline starts the trail of an entity; 409 when one exists.
func (h *VersionHandler) Baseline(c echo.Context) error {
	app, id, err := entityParams(c)
	if err != nil {
		return fail(c, h.Log, "entity params", err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v, err := h.Versions.MakeVersion(ctx, app, id, middleware.UserID(c))
	if err != nil {
		return fail(c, h.Log, "make version", err)
	}
	return c.JSON(http.StatusCreated, versionResp{Status: "ok", Created: true, Version: v})
}
