package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/rs/zerolog/log"
)

// CookieName is the cookie the session token is stored in.
const CookieName = "token"

type contextKey string

const viewerKey = contextKey("viewer")

// Verifier turns a bearer token into a viewer.
type Verifier interface {
	Verify(token string) (*models.Viewer, error)
}

// Verify implements Verifier for the server's own session tokens.
func (t *TokenIssuer) Verify(tokenStr string) (*models.Viewer, error) {
	claims, err := t.ValidateJWT(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims.Viewer(), nil
}

// Authenticator resolves the viewer of a request by trying each verifier in turn.
type Authenticator struct {
	verifiers []Verifier
}

func NewAuthenticator(verifiers ...Verifier) *Authenticator {
	return &Authenticator{verifiers: verifiers}
}

// ViewerFromToken returns the viewer named by the first verifier that accepts token.
func (a *Authenticator) ViewerFromToken(tokenStr string) (*models.Viewer, error) {
	if tokenStr == "" {
		return nil, errors.New("missing auth token")
	}
	var errs []error
	for _, v := range a.verifiers {
		viewer, err := v.Verify(tokenStr)
		if err == nil {
			return viewer, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}

// TokenFromRequest reads the token from the Authorization header, falling back to the cookie.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware attaches the viewer to the request context when a token is
// present. Requests without a token pass through anonymously; a token that
// fails verification is rejected.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			viewer, err := a.ViewerFromToken(tokenStr)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected auth token")
				unauthorized(w, "Invalid auth token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

// RequireViewer rejects anonymous requests. It must run after Middleware.
func RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ViewerFromContext(r.Context()) == nil {
			unauthorized(w, "Missing auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithViewer returns a copy of ctx carrying viewer.
func WithViewer(ctx context.Context, viewer *models.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, viewer)
}

// ViewerFromContext returns the request's viewer, or nil for an anonymous request.
func ViewerFromContext(ctx context.Context) *models.Viewer {
	viewer, _ := ctx.Value(viewerKey).(*models.Viewer)
	return viewer
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
