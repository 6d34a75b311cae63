package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/authledger/internal/handler"
	"github.com/iliyamo/authledger/internal/middleware"
)

// RegisterRoutes registers endpoints that need no session.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers the session endpoints. Token issuance sits
// behind the login limiter; update and logout need a valid token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens middleware.TokenValidator, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	if loginLimit != nil {
		g.POST("/token", a.Token, loginLimit)
	} else {
		g.POST("/token", a.Token)
	}
	// check validates only, so it stays outside TokenAuth which renews
	g.GET("/check", a.Check)
	g.POST("/check", a.Check)

	auth := g.Group("", middleware.TokenAuth(tokens))
	auth.POST("/update", a.Update)
	auth.POST("/logout", a.Logout)
}

// RegisterVersions registers audit trail and grid endpoints, all behind
// TokenAuth.
func RegisterVersions(e *echo.Echo, v *handler.VersionHandler, m *handler.MatrixHandler, tokens middleware.TokenValidator) {
	g := e.Group("/v1", middleware.TokenAuth(tokens))

	g.GET("/versions/:app/:id", v.List)
	g.GET("/versions/:app/:id/:seq", v.Get)
	g.POST("/versions/:app/:id", v.Add)
	g.POST("/versions/:app/:id/baseline", v.Baseline)

	g.POST("/apps/:app/:id/matrix/diff", m.Diff)
	g.PUT("/apps/:app/:id/matrix", m.Save)
}
