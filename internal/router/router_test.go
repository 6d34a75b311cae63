package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/database"
	"github.com/iliyamo/authledger/internal/handler"
	"github.com/iliyamo/authledger/internal/lock"
	"github.com/iliyamo/authledger/internal/matrix"
	"github.com/iliyamo/authledger/internal/repository"
	"github.com/iliyamo/authledger/internal/schema"
	"github.com/iliyamo/authledger/internal/service"
	"github.com/iliyamo/authledger/internal/utils"
)

func newServer(t *testing.T) (*echo.Echo, *sql.DB) {
	t.Helper()
	db, err := database.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db, "sqlite3"))

	cfg := config.DefaultAuthConfig()
	cfg.TokenRenewals = 5
	locks := lock.NewLocalLocker(lock.Options{Wait: time.Second})
	apps := schema.DefaultRegistry()
	entities := repository.NewEntityRepo(db)

	tm := service.NewTokenManager(repository.NewUserRepo(db), repository.NewPasswordRepo(db), repository.NewTokenRepo(db),
		locks, &utils.Hasher{Algorithm: "bcrypt", BcryptCost: 4}, cfg, nil)
	ve := service.NewVersionEngine(apps, entities, repository.NewVersionRepo(db), locks, service.NopPublisher{}, nil)
	rc := matrix.NewReconciler(apps, entities, nil)

	_, err = tm.RegisterUser(ctx, "alice", "Alice", "Correct-Horse-42")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO app_invoices (id, customer, description, total) VALUES (5, 'ACME', 'Q2', 20)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO app_invoices_lines (id, invoice_id, description, quantity, price, total) VALUES (7, 5, 'Widget', 2, 10, 20)")
	require.NoError(t, err)

	e := echo.New()
	RegisterRoutes(e, db)
	RegisterAuth(e, handler.NewAuthHandler(tm, nil), tm, nil)
	RegisterVersions(e, handler.NewVersionHandler(ve, nil), handler.NewMatrixHandler(apps, rc, entities, ve, nil), tm)
	return e, db
}

func do(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Token", token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(e, http.MethodPost, "/v1/auth/token", "", `{"user":"alice","pass":"Correct-Horse-42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	e, _ := newServer(t)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/readyz", "", "").Code)
}

func TestSessionFlow(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodPost, "/v1/auth/token", "", `{"user":"alice","pass":"nope"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ko"}`, rec.Body.String())

	first := login(t, e)
	second := login(t, e)

	// a new login ends the previous session
	assert.JSONEq(t, `{"status":"ko"}`, do(e, http.MethodGet, "/v1/auth/check", first, "").Body.String())
	assert.Contains(t, do(e, http.MethodGet, "/v1/auth/check", second, "").Body.String(), `"status":"ok"`)

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/versions/invoices/5", first, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/versions/invoices/5", "", "").Code)

	rec = do(e, http.MethodPost, "/v1/auth/update", second, `{"oldpass":"Correct-Horse-42","newpass":"Another-Pass-77","renewpass":"Another-Pass-78"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/auth/logout", second, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.JSONEq(t, `{"status":"ko"}`, do(e, http.MethodPost, "/v1/auth/check", second, "").Body.String())
}

func TestPasswordUpdateEndsSessions(t *testing.T) {
	e, _ := newServer(t)
	tok := login(t, e)

	rec := do(e, http.MethodPost, "/v1/auth/update", tok, `{"oldpass":"Correct-Horse-42","newpass":"Another-Pass-77","renewpass":"Another-Pass-77"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/auth/logout", tok, "").Code)

	rec = do(e, http.MethodPost, "/v1/auth/token", "", `{"user":"alice","pass":"Another-Pass-77"}`)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestGridSaveRecordsVersion(t *testing.T) {
	e, db := newServer(t)
	tok := login(t, e)

	rec := do(e, http.MethodPost, "/v1/versions/invoices/5/baseline", tok, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/v1/versions/invoices/5/baseline", tok, "").Code)

	grid := `{"lines":[["Widget","3","10","0","0","30"]]}`
	rec = do(e, http.MethodPost, "/v1/apps/invoices/5/matrix/diff", tok, grid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"quantity":"3"`)

	var qty int
	require.NoError(t, db.QueryRow("SELECT quantity FROM app_invoices_lines WHERE id=7").Scan(&qty))
	assert.Equal(t, 2, qty, "diff must not write")

	rec = do(e, http.MethodPut, "/v1/apps/invoices/5/matrix", tok, grid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved struct {
		Created bool `json:"created"`
		Version struct {
			Seq int `json:"seq"`
		} `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.True(t, saved.Created)
	assert.Equal(t, 1, saved.Version.Seq)
	require.NoError(t, db.QueryRow("SELECT quantity FROM app_invoices_lines WHERE id=7").Scan(&qty))
	assert.Equal(t, 3, qty)

	// resubmitting the same grid changes nothing
	rec = do(e, http.MethodPut, "/v1/apps/invoices/5/matrix", tok, grid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"patch":{}`)

	type versionBody struct {
		Version struct {
			Seq   int                                     `json:"seq"`
			State map[string]map[string]map[string]any `json:"state"`
		} `json:"version"`
	}
	for seq, want := range map[string]float64{"0": 2, "1": 3, "9": 3} {
		rec := do(e, http.MethodGet, "/v1/versions/invoices/5/"+seq, tok, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var vb versionBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vb))
		assert.EqualValues(t, want, vb.Version.State["app_invoices_lines"]["7"]["quantity"], "seq %s", seq)
	}

	rec = do(e, http.MethodGet, "/v1/versions/invoices/5", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Versions []json.RawMessage `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Versions, 2)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/versions/invoices/99", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/versions/orders/5", tok, "").Code)
}
