package controllers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/admin"
	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/room"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

// AdminController serves the dashboard commands. Both require the resolved
// user to carry the ADMIN role; anything else is dropped silently.
type AdminController struct {
	Projection *admin.Projection
	Hub        *ws.Hub
	Events     *eventlog.Logger
	Log        *zap.Logger
}

// Join acknowledges an admin client; data flows via polled ADMIN_GET_DATA.
func (ac *AdminController) Join(c *ws.Client) {
	user := c.User()
	if user.Role != models.RoleAdmin {
		return
	}
	ac.GetData(c)
}

func (ac *AdminController) GetData(c *ws.Client) {
	user := c.User()
	if user.Role != models.RoleAdmin {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snapshot, err := ac.Projection.Snapshot(ctx, ac.Hub.Count())
	if err != nil {
		ac.Log.Error("admin snapshot failed", zap.Error(err))
		ac.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	ac.Hub.EmitTo(c.ID, ws.EvAdminDataUpdate, snapshot)
	ac.Events.Record(eventlog.AdminGetData, user.ID, nil)
}
