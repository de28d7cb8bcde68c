package handlers

import (
	"net/http"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/auth"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/services"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles account registration, sign-in and the admin login.
type AuthHandler struct {
	service       services.UserServiceProvider
	tokens        *auth.TokenIssuer
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.UserServiceProvider, tokens *auth.TokenIssuer, secureCookies bool) *AuthHandler {
	return &AuthHandler{service: service, tokens: tokens, secureCookies: secureCookies}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// AdminLoginPayload defines the structure for admin login requests.
type AdminLoginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register handles new user registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		writeError(w, r, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User registered")
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication and JWT generation.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed authentication attempt")
		h.rejectLogin(w, r, err)
		return
	}

	token, ok := h.issue(w, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// AdminLogin authenticates the administrator account by username.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var payload AdminLoginPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.AuthenticateAdmin(r.Context(), payload.Username, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("username", payload.Username).Msg("Failed admin login attempt")
		h.rejectLogin(w, r, err)
		return
	}

	token, ok := h.issue(w, user)
	if !ok {
		return
	}
	log.Info().Str("user_id", user.ID).Msg("Administrator signed in")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Me returns the current viewer and, for local accounts, the stored user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	resp := map[string]any{
		"viewer":  viewer,
		"isAdmin": h.service.IsAdmin(models.User{Email: viewer.Email}),
	}

	user, err := h.service.GetUserByID(r.Context(), viewer.UserID)
	switch {
	case err == nil:
		resp["user"] = user
	case errdef.IsNotFound(err):
		// Signed in through the external identity provider.
	default:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	WriteMessage(w, http.StatusOK, "Logged out")
}

func (h *AuthHandler) rejectLogin(w http.ResponseWriter, r *http.Request, err error) {
	if errdef.IsUnauthorized(err) {
		WriteMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeError(w, r, err)
}

// issue signs a token for user and sets it as the session cookie.
func (h *AuthHandler) issue(w http.ResponseWriter, user models.User) (string, bool) {
	token, err := h.tokens.GenerateJWT(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		WriteMessage(w, http.StatusInternalServerError, "Failed to generate token")
		return "", false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Expires:  time.Now().Add(h.tokens.TTL()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	return token, true
}
