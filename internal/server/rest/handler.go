// Package rest exposes the account flows over HTTP using chi.
package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/logging"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/services"
	"github.com/go-playground/validator/v10"
)

// Options tune cookie and redirect behaviour.
type Options struct {
	ClientBaseURL string
	SessionTTL    time.Duration
	SecureCookies bool
}

type Handler struct {
	auth      *services.AuthService
	resolver  *services.SessionResolver
	profile   *services.ProfileService
	avatars   *services.AvatarService
	twoFactor *services.TwoFactorService
	validate  *validator.Validate
	log       logging.Logger
	opts      Options
}

func NewHandler(auth *services.AuthService, resolver *services.SessionResolver, profile *services.ProfileService,
	avatars *services.AvatarService, twoFactor *services.TwoFactorService, log logging.Logger, opts Options) *Handler {
	return &Handler{
		auth:      auth,
		resolver:  resolver,
		profile:   profile,
		avatars:   avatars,
		twoFactor: twoFactor,
		validate:  newValidator(),
		log:       log.With("module", "http"),
		opts:      opts,
	}
}

// bind decodes and validates the JSON body into dst. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(r.Context(), h.log, w, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(r.Context(), h.log, w, validationError(err))
		return false
	}
	return true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}

	u, err := h.auth.Register(r.Context(), services.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Email:    strings.TrimSpace(req.Email),
		Role:     models.Role(req.Role),
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}

	msg := "Registration successful. Please check your email to verify your account."
	if u.Verified {
		msg = "Registration successful. You can now log in."
	}
	writeJSON(w, http.StatusCreated, struct {
		User    userResponse `json:"user"`
		Message string       `json:"message"`
	}{toUserResponse(u), msg})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.Login)
}

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.AdminLogin)
}

type loginFunc func(ctx context.Context, username, password string) (*models.User, error)

func (h *Handler) login(w http.ResponseWriter, r *http.Request, check loginFunc) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusUnauthorized, common.GenericLoginFailure)
		return
	}

	u, err := check(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeMessage(w, http.StatusUnauthorized, common.GenericLoginFailure)
			return
		}
		writeError(r.Context(), h.log, w, err)
		return
	}

	cookie, err := h.resolver.Serialize(r.Context(), u)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	h.setSessionCookie(w, cookie)

	writeJSON(w, http.StatusOK, struct {
		User userResponse `json:"user"`
	}{toUserResponse(u)})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(common.SessionCookieName); err == nil {
		if err := h.resolver.Invalidate(r.Context(), c.Value); err != nil {
			writeError(r.Context(), h.log, w, err)
			return
		}
	}
	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out")
}

// VerifyEmail always redirects to the client login page; the outcome travels
// in the fragment.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.log.Error(r.Context(), "email verification failed", "error", err)
		outcome = services.VerificationFailed
	}

	target := strings.TrimRight(h.opts.ClientBaseURL, "/") + "/login#verification=" + string(outcome)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "If an unverified account with that email exists, a new verification link has been sent")
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeMessage(w, http.StatusOK, common.GenericResetNotice)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset. You can now log in.")
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(currentUser(r.Context())))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !h.bind(w, r, &req) {
		return
	}

	u, err := h.profile.Update(r.Context(), currentUser(r.Context()), services.ProfileUpdate{
		Email:     req.Email,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) AvatarUpload(w http.ResponseWriter, r *http.Request) {
	up, err := h.avatars.PresignUpload(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Key       string    `json:"key"`
		UploadURL string    `json:"uploadUrl"`
		PublicURL string    `json:"publicUrl"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{up.Key, up.UploadURL, up.PublicURL, up.ExpiresAt})
}

func (h *Handler) TwoFactorSend(w http.ResponseWriter, r *http.Request) {
	if err := h.twoFactor.Send(r.Context(), currentUser(r.Context())); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification code sent")
}

func (h *Handler) TwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorVerifyRequest
	if !h.bind(w, r, &req) {
		return
	}

	ok, err := h.twoFactor.Verify(r.Context(), currentUser(r.Context()), req.Code)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}

	type verifyResponse struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message,omitempty"`
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, verifyResponse{Valid: false, Message: "Invalid or expired code"})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true})
}

func (h *Handler) TwoFactorReset(w http.ResponseWriter, r *http.Request) {
	if err := h.twoFactor.Reset(r.Context(), currentUser(r.Context())); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification code cleared")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
