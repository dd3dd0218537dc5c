// Package router wires the HTTP surface onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/innovatewithkishlay/justlputhings/internal/handler"
	"github.com/innovatewithkishlay/justlputhings/internal/middleware"
	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

// Deps carries everything the routes need.
type Deps struct {
	Auth         *handler.AuthHandler
	Access       *handler.AccessHandler
	Admin        *handler.AdminHandler
	WorkerHealth *handler.WorkerHealthHandler
	Verifier     middleware.Verifier
	Users        middleware.UserSource
	Gatherer     prometheus.Gatherer
}

// Register mounts all routes. Unauthenticated operations live under
// /v1/auth; everything else requires a valid, non-denylisted access
// token, and the admin group additionally requires the ADMIN role.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/google", d.Auth.GoogleLogin)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(d.Verifier, d.Users))
	auth.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	auth.GET("/me", d.Auth.Me)
	auth.GET("/materials/:slug/access", d.Access.RequestAccess)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(d.Verifier, d.Users))
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.POST("/materials", d.Admin.UploadMaterial)
	admin.DELETE("/materials/:id", d.Admin.RemoveMaterial)
	admin.GET("/materials/:id/stats", d.Admin.MaterialStats)
	admin.POST("/users/:id/block", d.Admin.BlockUser)
	admin.POST("/users/:id/unblock", d.Admin.UnblockUser)
	admin.DELETE("/users/:id", d.Admin.DeleteUser)
	admin.GET("/worker/health", d.WorkerHealth.Get)
}
