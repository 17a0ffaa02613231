// Package credentialengine предоставляет сборку и маршруты основного приложения.
package credentialengine

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/deleteaccount"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/passwordchange"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/passwordconfirm"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/passwordforgot"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/passwordreset"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/profileupdate"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/verificationresend"
	"github.com/magabrotheeeer/credential-engine/internal/http/handlers/auth/verifyemail"
	"github.com/magabrotheeeer/credential-engine/internal/http/middlewarectx"
	services "github.com/magabrotheeeer/credential-engine/internal/services/auth"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, authService *services.AuthService) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Post("/refresh", refresh.New(logger, authService).ServeHTTP)
		r.Post("/logout", logout.New(logger, authService).ServeHTTP)
		r.Post("/password/forgot", passwordforgot.New(logger, authService).ServeHTTP)
		r.Post("/password/confirm", passwordconfirm.New(logger, authService).ServeHTTP)
		r.Post("/password/reset", passwordreset.New(logger, authService).ServeHTTP)
		r.Post("/email/verify", verifyemail.New(logger, authService).ServeHTTP)

		// Группа с проверкой access-токена
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Get("/me", me.New(logger, authService).ServeHTTP)
			r.Patch("/me", profileupdate.New(logger, authService).ServeHTTP)
			r.Delete("/me", deleteaccount.New(logger, authService).ServeHTTP)
			r.Post("/password/change", passwordchange.New(logger, authService).ServeHTTP)
			r.Post("/email/resend", verificationresend.New(logger, authService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
