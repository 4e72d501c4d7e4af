// Package handlers exposes the HTTP API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// TokenHeader carries the session token.
const TokenHeader = "X-Token"

var tracer = otel.Tracer("files-manager-handlers")

// Authenticator resolves tokens and runs the login flow.
type Authenticator interface {
	Resolve(ctx context.Context, token string, req auth.Requirement) (*models.Identity, error)
	Login(ctx context.Context, header string) (string, error)
	Logout(ctx context.Context, token string) error
}

// FileService is the file hierarchy.
type FileService interface {
	Create(ctx context.Context, identity *models.Identity, in files.CreateInput) (*models.File, error)
	List(ctx context.Context, identity *models.Identity, in files.ListInput) ([]*models.File, error)
	Get(ctx context.Context, identity *models.Identity, id string) (*models.File, error)
	SetVisibility(ctx context.Context, identity *models.Identity, id string, isPublic bool) (*models.File, error)
	Content(ctx context.Context, token, id string, size int) (*files.Content, error)
}

// UserService registers accounts.
type UserService interface {
	Register(ctx context.Context, email, password string) (*models.Identity, error)
	Me(identity *models.Identity) *models.Identity
}

// Counter counts stored records.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// StatusChecker reports store liveness by name.
type StatusChecker interface {
	Run(ctx context.Context) map[string]bool
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Auth         Authenticator
	Files        FileService
	Users        UserService
	UserCounter  Counter
	FileCounter  Counter
	Health       StatusChecker
	Log          logrus.FieldLogger
	MaxBodyBytes int64
}

// NewRouter builds the API router.
func NewRouter(d Deps) http.Handler {
	app := NewAppHandler(d.Health, d.UserCounter, d.FileCounter, d.Log)
	authH := NewAuthHandler(d.Auth, d.Log)
	usersH := NewUsersHandler(d.Users, d.Auth, d.MaxBodyBytes, d.Log)
	filesH := NewFilesHandler(d.Files, d.Auth, d.MaxBodyBytes, d.Log)

	router := mux.NewRouter()
	router.Use(requestLogger(d.Log))

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/", app.Index},
		{http.MethodGet, "/status", app.Status},
		{http.MethodGet, "/stats", app.Stats},
		{http.MethodGet, "/connect", authH.Connect},
		{http.MethodGet, "/disconnect", authH.Disconnect},
		{http.MethodPost, "/users", usersH.Create},
		{http.MethodGet, "/users/me", usersH.Me},
		{http.MethodPost, "/files", filesH.Create},
		{http.MethodGet, "/files", filesH.List},
		{http.MethodGet, "/files/{id}", filesH.Show},
		{http.MethodGet, "/files/{id}/data", filesH.Data},
		{http.MethodPut, "/files/{id}/publish", filesH.Publish},
		{http.MethodPut, "/files/{id}/unpublish", filesH.Unpublish},
	}

	for _, rt := range routes {
		router.Handle(rt.path, otelhttp.NewHandler(rt.handler, rt.method+" "+rt.path)).Methods(rt.method)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})

	return router
}
