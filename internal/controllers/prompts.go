package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/room"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

type savePromptPayload struct {
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

type deleteSavedPromptPayload struct {
	ID string `json:"id"`
}

type savedPromptsListPayload struct {
	Prompts []models.SavedPrompt `json:"prompts"`
}

type previousSessionsPayload struct {
	Sessions []store.SessionSummary `json:"sessions"`
}

func promptCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// savePrompt stores a reusable template for the calling teacher and
// refreshes their saved-prompts list.
func (ec *EventController) savePrompt(c *ws.Client, p savePromptPayload) {
	user := c.User()
	if user.Role != models.RoleTeacher {
		return
	}
	if strings.TrimSpace(p.Content) == "" || !models.ValidPromptType(p.Type) {
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "Prompt content and type are required."})
		return
	}
	ctx, cancel := promptCtx()
	defer cancel()
	if _, err := ec.Store.CreateSavedPrompt(ctx, user.ID, p.Content, p.Type, p.Options); err != nil {
		ec.Log.Error("create saved prompt failed", zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	ec.emitSavedPrompts(c, user.ID)
}

func (ec *EventController) listSavedPrompts(c *ws.Client) {
	user := c.User()
	if user.Role != models.RoleTeacher {
		return
	}
	ec.emitSavedPrompts(c, user.ID)
}

// deleteSavedPrompt removes a template; only the owner may delete.
func (ec *EventController) deleteSavedPrompt(c *ws.Client, p deleteSavedPromptPayload) {
	user := c.User()
	if user.Role != models.RoleTeacher {
		return
	}
	ctx, cancel := promptCtx()
	defer cancel()
	err := ec.Store.DeleteSavedPrompt(ctx, user.ID, p.ID)
	if errors.Is(err, store.ErrForbidden) || errors.Is(err, store.ErrNotFound) {
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "Saved prompt not found."})
		return
	}
	if err != nil {
		ec.Log.Error("delete saved prompt failed", zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	ec.emitSavedPrompts(c, user.ID)
}

func (ec *EventController) emitSavedPrompts(c *ws.Client, teacherID string) {
	ctx, cancel := promptCtx()
	defer cancel()
	prompts, err := ec.Store.ListSavedPrompts(ctx, teacherID)
	if err != nil {
		ec.Log.Error("list saved prompts failed", zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	if prompts == nil {
		prompts = []models.SavedPrompt{}
	}
	ec.Hub.EmitTo(c.ID, ws.EvSavedPromptsList, savedPromptsListPayload{Prompts: prompts})
}

// previousSessions returns the calling teacher's session history.
func (ec *EventController) previousSessions(c *ws.Client) {
	user := c.User()
	if user.Role != models.RoleTeacher {
		return
	}
	ctx, cancel := promptCtx()
	defer cancel()
	sessions, err := ec.Store.ListSessionsByTeacher(ctx, user.ID)
	if err != nil {
		ec.Log.Error("list sessions failed", zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	ec.Hub.EmitTo(c.ID, ws.EvPreviousSessions, previousSessionsPayload{Sessions: sessions})
}
