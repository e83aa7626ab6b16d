package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/config"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/utils"
)

// SeedAdmin guarantees the dashboard is reachable on a fresh database by
// creating one ADMIN user from config. Idempotent.
func SeedAdmin(ctx context.Context, st store.Store, cfg *config.Config, log *zap.Logger) error {
	if _, err := st.FindUserByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	}

	// The hash is stored for parity with external auth flows; websocket
	// identity goes through the resolver, not a password check.
	hash, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	user, err := st.UpsertUser(ctx, store.UpsertUserParams{
		Email:    cfg.AdminEmail,
		Name:     cfg.AdminFullName,
		Role:     models.RoleAdmin,
		Password: hash,
	})
	if err != nil {
		return err
	}
	log.Info("seeded initial admin", zap.String("email", user.Email))
	return nil
}
