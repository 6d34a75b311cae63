package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/middleware"
	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// Reconciler computes the minimal patch for a submitted grid.
type Reconciler interface {
	Unmake(ctx context.Context, app string, id uint64, submitted map[string]json.RawMessage) (model.GridPatch, error)
}

// PatchApplier writes a patch to the entity tables.
type PatchApplier interface {
	Apply(ctx context.Context, app schema.App, id uint64, patch model.GridPatch) error
}

// Mutator runs a write to one entity and records the version it produces
// while holding the entity's version lock.
type Mutator interface {
	Mutate(ctx context.Context, app string, id, userID uint64, fn func(ctx context.Context) error) (model.VersionState, bool, error)
}

// MatrixHandler accepts grid submissions for versioned entities.
type MatrixHandler struct {
	Apps       *schema.Registry
	Reconciler Reconciler
	Entities   PatchApplier
	Versions   Mutator
	Log        *zap.Logger
}

func NewMatrixHandler(apps *schema.Registry, r Reconciler, entities PatchApplier, v Mutator, log *zap.Logger) *MatrixHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatrixHandler{Apps: apps, Reconciler: r, Entities: entities, Versions: v, Log: log}
}

type matrixResp struct {
	Status  string              `json:"status"`
	Patch   model.GridPatch     `json:"patch"`
	Created bool                `json:"created,omitempty"`
	Version *model.VersionState `json:"version,omitempty"`
}

func submission(c echo.Context) (string, uint64, map[string]json.RawMessage, error) {
	app, id, err := entityParams(c)
	if err != nil {
		return "", 0, nil, err
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return "", 0, nil, badRequest("invalid body")
	}
	return app, id, body, nil
}

// Diff returns the patch a submission would produce without writing it.
func (h *MatrixHandler) Diff(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	appName, id, body, err := submission(c)
	if err != nil {
		return fail(c, h.Log, "unmake matrix", err)
	}
	patch, err := h.Reconciler.Unmake(ctx, appName, id, body)
	if err != nil {
		return fail(c, h.Log, "unmake matrix", err)
	}
	return c.JSON(http.StatusOK, matrixResp{Status: "ok", Patch: patch})
}

// Save applies the submission's patch and records a version in the same
// request. The diff, the write and the version run under one lock.
func (h *MatrixHandler) Save(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	appName, id, body, err := submission(c)
	if err != nil {
		return fail(c, h.Log, "save matrix", err)
	}
	app, err := h.Apps.App(appName)
	if err != nil {
		return fail(c, h.Log, "save matrix", err)
	}
	var patch model.GridPatch
	v, created, err := h.Versions.Mutate(ctx, appName, id, middleware.UserID(c), func(ctx context.Context) error {
		p, err := h.Reconciler.Unmake(ctx, appName, id, body)
		if err != nil {
			return err
		}
		patch = p
		if p.Empty() {
			return nil
		}
		return h.Entities.Apply(ctx, app, id, p)
	})
	if err != nil {
		return fail(c, h.Log, "save matrix", err)
	}
	return c.JSON(http.StatusOK, matrixResp{Status: "ok", Patch: patch, Created: created, Version: &v})
}
