// Package auth resolves session tokens into identities and handles the
// login/logout flow.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/session"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/sirupsen/logrus"
)

// Requirement tells Resolve how to treat a missing token.
type Requirement int

const (
	// Required turns an empty token into Unauthorized.
	Required Requirement = iota
	// Optional lets an empty token through as an anonymous caller.
	Optional
)

const basicPrefix = "Basic "

// Sessions issues and resolves tokens.
type Sessions interface {
	Issue(ctx context.Context, userID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Users is the read side of the users repository.
type Users interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// IdentityCache is a read-through cache of identities. GetIdentity returns
// nil, nil on a miss.
type IdentityCache interface {
	GetIdentity(ctx context.Context, userID string) (*models.Identity, error)
	SetIdentity(ctx context.Context, identity *models.Identity) error
}

// Verifier checks a password against its stored digest.
type Verifier interface {
	Verify(digest, password string) bool
}

// Resolver authenticates callers.
type Resolver struct {
	sessions Sessions
	users    Users
	verifier Verifier
	cache    IdentityCache
	log      logrus.FieldLogger
}

// NewResolver builds a Resolver. cache may be nil.
func NewResolver(sessions Sessions, users Users, verifier Verifier, cache IdentityCache, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		sessions: sessions,
		users:    users,
		verifier: verifier,
		cache:    cache,
		log:      log,
	}
}

// Resolve maps token to the identity it was issued for. With Optional, an
// empty token yields (nil, nil); any other failure is Unauthorized, or an
// Internal error when a store is unreachable.
func (r *Resolver) Resolve(ctx context.Context, token string, req Requirement) (*models.Identity, error) {
	if token == "" {
		if req == Optional {
			return nil, nil
		}
		return nil, apperr.Unauthorized()
	}

	userID, err := r.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil, apperr.Unauthorized()
	} else if err != nil {
		return nil, err
	}

	return r.identity(ctx, userID)
}

func (r *Resolver) identity(ctx context.Context, userID string) (*models.Identity, error) {
	if r.cache != nil {
		cached, err := r.cache.GetIdentity(ctx, userID)
		if err != nil {
			r.log.WithError(err).WithField("user_id", userID).Warn("identity cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	user, err := r.users.FindByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Unauthorized()
	} else if err != nil {
		return nil, err
	}

	identity := user.Identity()
	if r.cache != nil {
		if err := r.cache.SetIdentity(ctx, identity); err != nil {
			r.log.WithError(err).WithField("user_id", userID).Warn("identity cache write failed")
		}
	}
	return identity, nil
}

// Login checks the Basic credentials in header and issues a new token.
func (r *Resolver) Login(ctx context.Context, header string) (string, error) {
	email, password, ok := parseBasic(header)
	if !ok {
		return "", apperr.Unauthorized()
	}

	user, err := r.users.FindByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperr.Unauthorized()
	} else if err != nil {
		return "", err
	}

	if !r.verifier.Verify(user.PasswordHash, password) {
		return "", apperr.Unauthorized()
	}

	token, err := r.sessions.Issue(ctx, user.ID)
	if err != nil {
		return "", err
	}

	r.log.WithField("user_id", user.ID).Info("session issued")
	return token, nil
}

// Logout revokes token. Unknown tokens are Unauthorized.
func (r *Resolver) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperr.Unauthorized()
	}

	err := r.sessions.Revoke(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return apperr.Unauthorized()
	}
	return err
}

// parseBasic decodes "Basic base64(email:password)". The password may contain
// colons.
func parseBasic(header string) (email, password string, ok bool) {
	if len(header) < len(basicPrefix) || !strings.EqualFold(header[:len(basicPrefix)], basicPrefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(basicPrefix):]))
	if err != nil {
		return "", "", false
	}

	email, password, ok = strings.Cut(string(decoded), ":")
	if !ok || email == "" {
		return "", "", false
	}
	return email, password, true
}
