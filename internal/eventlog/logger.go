package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/store"
)

// Domain event kinds recorded in the audit log.
const (
	UserConnect      = "USER_CONNECT"
	JoinRoom         = "JOIN_ROOM"
	StartClass       = "START_CLASS"
	SendPrompt       = "SEND_PROMPT"
	SubmitThought    = "SUBMIT_THOUGHT"
	TriggerSwap      = "TRIGGER_SWAP"
	RequestReswap    = "REQUEST_RESWAP"
	DeleteThought    = "DELETE_THOUGHT"
	EndSession       = "END_SESSION"
	SessionAutoEnded = "SESSION_AUTO_ENDED"
	AdminGetData     = "ADMIN_GET_DATA"
	UpdateConsent    = "UPDATE_CONSENT"
	UpdateSettings   = "UPDATE_SETTINGS"
	ResetState       = "RESET_STATE"
)

// Logger appends domain events to the store. Appends are fire-and-forget:
// a failed write is logged and swallowed, never surfaced to clients.
type Logger struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store, log *zap.Logger) *Logger {
	return &Logger{store: st, log: log}
}

// Record appends asynchronously; payload must be JSON-serializable.
func (l *Logger) Record(event, userID string, payload interface{}) {
	var uid *string
	if userID != "" {
		uid = &userID
	}
	var data []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			l.log.Warn("event payload not serializable",
				zap.String("event", event), zap.Error(err))
			return
		}
		data = b
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.AppendLogEvent(ctx, event, uid, data); err != nil {
			l.log.Warn("event log append failed",
				zap.String("event", event), zap.Error(err))
		}
	}()
}
