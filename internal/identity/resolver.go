package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

// GuestPrefix marks handshake emails that belong to unauthenticated guest
// participants; they get a synthesized user record instead of an LMS lookup.
const GuestPrefix = "guest_"

var ErrUnknownUser = errors.New("identity: no account for email")

// Resolver maps handshake hints to a persistent user. Guests are upserted;
// everyone else must already exist, created by the OAuth callback.
type Resolver struct {
	store store.Store
	log   *zap.Logger
}

func NewResolver(st store.Store, log *zap.Logger) *Resolver {
	return &Resolver{store: st, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, h ws.Hints) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(h.Email))
	if email == "" {
		return nil, ErrUnknownUser
	}

	if strings.HasPrefix(email, GuestPrefix) {
		role := strings.ToUpper(h.Role)
		if !models.ValidRole(role) {
			role = models.RoleStudent
		}
		name := h.Name
		if name == "" {
			name = "Guest"
		}
		externalID := "guest-" + uuid.NewString()
		user, err := r.store.UpsertUser(ctx, store.UpsertUserParams{
			ExternalID: &externalID,
			Email:      email,
			Name:       name,
			Role:       role,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert guest: %w", err)
		}
		return user, nil
	}

	user, err := r.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
