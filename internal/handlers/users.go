package handlers

import (
	"net/http"

	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/sirupsen/logrus"
)

// UsersHandler serves account endpoints.
type UsersHandler struct {
	users        UserService
	auth         Authenticator
	maxBodyBytes int64
	log          logrus.FieldLogger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(users UserService, auth Authenticator, maxBodyBytes int64, log logrus.FieldLogger) *UsersHandler {
	return &UsersHandler{users: users, auth: auth, maxBodyBytes: maxBodyBytes, log: log}
}

// RegisterRequest is the body of POST /users.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Create handles POST /users
func (uh *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, uh.maxBodyBytes, &req); err != nil {
		writeError(w, r, uh.log, err)
		return
	}

	identity, err := uh.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, uh.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

// Me handles GET /users/me
func (uh *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := uh.auth.Resolve(r.Context(), tokenFrom(r), auth.Required)
	if err != nil {
		writeError(w, r, uh.log, err)
		return
	}
	writeJSON(w, http.StatusOK, uh.users.Me(identity))
}
