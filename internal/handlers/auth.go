package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// AuthHandler issues and revokes session tokens.
type AuthHandler struct {
	auth Authenticator
	log  logrus.FieldLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth Authenticator, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// TokenResponse carries a freshly issued token.
type TokenResponse struct {
	Token string `json:"token"`
}

// Connect handles GET /connect with Basic credentials.
func (ah *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token, err := ah.auth.Login(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, ah.log, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Disconnect handles GET /disconnect
func (ah *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := ah.auth.Logout(r.Context(), tokenFrom(r)); err != nil {
		writeError(w, r, ah.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
