package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the API under the root path.
func NewRouter(h *Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})

	// ---------------- Public ----------------
	r.Group(func(pub chi.Router) {
		pub.Post("/register", h.Register)
		pub.Post("/login", h.Login)
		pub.Post("/admin/login", h.AdminLogin)
		pub.Post("/logout", h.Logout)
		pub.Get("/verify-email", h.VerifyEmail)
		pub.Post("/resend-verification", h.ResendVerification)
		pub.Post("/forgot-password", h.ForgotPassword)
		pub.Post("/reset-password", h.ResetPassword)
	})

	// ---------------- Session required ----------------
	r.Group(func(g chi.Router) {
		g.Use(h.requireSession)
		g.Get("/user", h.GetUser)
		g.Patch("/user", h.UpdateUser)
		g.Post("/user/avatar", h.AvatarUpload)
		g.Post("/2fa/send", h.TwoFactorSend)
		g.Post("/2fa/verify", h.TwoFactorVerify)
		g.Post("/2fa/reset", h.TwoFactorReset)
	})

	return r
}
