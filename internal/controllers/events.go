package controllers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/room"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

// EventController routes inbound websocket commands to their handlers. It
// implements ws.Dispatcher; every command arrives here only after identity
// resolution, so c.User() is always set.
type EventController struct {
	Store  store.Store
	Rooms  *room.Service
	Hub    *ws.Hub
	Events *eventlog.Logger
	Admin  *AdminController
	Log    *zap.Logger
}

type consentStatusPayload struct {
	ConsentGiven bool       `json:"consentGiven"`
	ConsentDate  *time.Time `json:"consentDate"`
}

type updateConsentPayload struct {
	ConsentGiven bool `json:"consentGiven"`
}

func (ec *EventController) Connected(c *ws.Client) {
	user := c.User()
	ec.Hub.EmitTo(c.ID, ws.EvConsentStatus, consentStatusPayload{
		ConsentGiven: user.ConsentGiven,
		ConsentDate:  user.ConsentDate,
	})
	ec.Events.Record(eventlog.UserConnect, user.ID, map[string]string{
		"role": user.Role, "connectionId": c.ID,
	})
}

func (ec *EventController) Disconnected(c *ws.Client) {
	if c.User() == nil {
		return
	}
	ec.Rooms.Disconnect(c)
}

func (ec *EventController) Dispatch(c *ws.Client, ev ws.Event) {
	switch ev.Event {
	case ws.EvJoinRoom:
		var p room.JoinRoomPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.JoinRoom(c, p)
		}
	case ws.EvTeacherStartClass:
		ec.Rooms.StartClass(c)
	case ws.EvTeacherRejoin:
		var p room.JoinRoomPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.TeacherRejoin(c, p)
		}
	case ws.EvTeacherSendPrompt:
		var p room.SendPromptPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.SendPrompt(c, p)
		}
	case ws.EvSubmitThought:
		var p room.SubmitThoughtPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.SubmitThought(c, p)
		}
	case ws.EvTeacherDeleteThought:
		var p room.DeleteThoughtPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.DeleteThought(c, p)
		}
	case ws.EvTriggerSwap:
		var p room.JoinRoomPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.TriggerSwap(c, p)
		}
	case ws.EvStudentRequestThought:
		var p room.RequestNewThoughtPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.RequestNewThought(c, p)
		}
	case ws.EvTeacherReassign:
		var p room.ReassignPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.Reassign(c, p)
		}
	case ws.EvTeacherResetState:
		var p room.JoinRoomPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.ResetState(c, p)
		}
	case ws.EvUpdateSettings:
		var p room.SettingsPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.UpdateSettings(c, p)
		}
	case ws.EvEndSession:
		var p room.JoinRoomPayload
		if ec.bind(c, ev, &p) {
			ec.Rooms.EndSession(c, p)
		}
	case ws.EvUpdateConsent:
		var p updateConsentPayload
		if ec.bind(c, ev, &p) {
			ec.updateConsent(c, p)
		}
	case ws.EvSavePrompt:
		var p savePromptPayload
		if ec.bind(c, ev, &p) {
			ec.savePrompt(c, p)
		}
	case ws.EvGetSavedPrompts:
		ec.listSavedPrompts(c)
	case ws.EvDeleteSavedPrompt:
		var p deleteSavedPromptPayload
		if ec.bind(c, ev, &p) {
			ec.deleteSavedPrompt(c, p)
		}
	case ws.EvGetPreviousSessions:
		ec.previousSessions(c)
	case ws.EvAdminJoin:
		ec.Admin.Join(c)
	case ws.EvAdminGetData:
		ec.Admin.GetData(c)
	default:
		// Unknown commands are dropped without acknowledgement.
		ec.Log.Debug("unknown event", zap.String("event", ev.Event), zap.String("conn", c.ID))
	}
}

// bind unmarshals the frame payload; a malformed payload aborts the command.
func (ec *EventController) bind(c *ws.Client, ev ws.Event, dst interface{}) bool {
	if len(ev.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		ec.Log.Debug("malformed payload",
			zap.String("event", ev.Event), zap.String("conn", c.ID), zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "malformed payload"})
		return false
	}
	return true
}

func (ec *EventController) updateConsent(c *ws.Client, p updateConsentPayload) {
	user := c.User()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	updated, err := ec.Store.RecordConsent(ctx, user.ID, p.ConsentGiven, time.Now())
	if err != nil {
		ec.Log.Error("record consent failed", zap.Error(err))
		ec.Hub.EmitTo(c.ID, ws.EvError, room.ErrorPayload{Message: "internal error"})
		return
	}
	c.SetUser(updated)
	ec.Hub.EmitTo(c.ID, ws.EvConsentStatus, consentStatusPayload{
		ConsentGiven: updated.ConsentGiven,
		ConsentDate:  updated.ConsentDate,
	})
	ec.Events.Record(eventlog.UpdateConsent, user.ID, map[string]bool{
		"consentGiven": p.ConsentGiven,
	})
}
