package controllers

import (
	"context"
	"net/http"
	"strings"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/services"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type identityKey struct{}

// AuthMiddleware resolves the bearer token of every request into the caller identity.
func AuthMiddleware(identities services.IdentityProvider, log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, r, log, apperrors.Unauthorized("missing bearer token"))
				return
			}
			identity, err := identities.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
		})
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(models.Identity)
	return identity, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// actor is the identity of an authenticated request. Routes without the middleware never call it.
func actor(r *http.Request) models.Identity {
	identity, _ := IdentityFrom(r.Context())
	return identity
}
