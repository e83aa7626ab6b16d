package ws

import "encoding/json"

// Event is one frame on the bidirectional stream: a symbolic name plus a
// JSON payload.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server commands.
const (
	EvJoinRoom              = "JOIN_ROOM"
	EvTeacherStartClass     = "TEACHER_START_CLASS"
	EvTeacherRejoin         = "TEACHER_REJOIN"
	EvTeacherSendPrompt     = "TEACHER_SEND_PROMPT"
	EvTeacherDeleteThought  = "TEACHER_DELETE_THOUGHT"
	EvTeacherReassign       = "TEACHER_REASSIGN_DISTRIBUTION"
	EvTeacherResetState     = "TEACHER_RESET_STATE"
	EvTriggerSwap           = "TRIGGER_SWAP"
	EvEndSession            = "END_SESSION"
	EvUpdateSettings        = "UPDATE_SESSION_SETTINGS"
	EvSubmitThought         = "SUBMIT_THOUGHT"
	EvStudentRequestThought = "STUDENT_REQUEST_NEW_THOUGHT"
	EvUpdateConsent         = "UPDATE_CONSENT"
	EvSavePrompt            = "SAVE_PROMPT"
	EvGetSavedPrompts       = "GET_SAVED_PROMPTS"
	EvDeleteSavedPrompt     = "DELETE_SAVED_PROMPT"
	EvAdminJoin             = "ADMIN_JOIN"
	EvAdminGetData          = "ADMIN_GET_DATA"
	EvGetPreviousSessions   = "GET_PREVIOUS_SESSIONS"
)

// Server → client notifications.
const (
	EvAuthError          = "AUTH_ERROR"
	EvConsentStatus      = "CONSENT_STATUS"
	EvClassStarted       = "CLASS_STARTED"
	EvJoinSuccess        = "JOIN_SUCCESS"
	EvParticipantsUpdate = "PARTICIPANTS_UPDATE"
	EvThoughtsUpdate     = "THOUGHTS_UPDATE"
	EvDistributionUpdate = "DISTRIBUTION_UPDATE"
	EvNewPrompt          = "NEW_PROMPT"
	EvReceiveSwap        = "RECEIVE_SWAP"
	EvSwapCompleted      = "SWAP_COMPLETED"
	EvRestoreState       = "RESTORE_STATE"
	EvThoughtDeleted     = "THOUGHT_DELETED"
	EvSessionEnded       = "SESSION_ENDED"
	EvSavedPromptsList   = "SAVED_PROMPTS_LIST"
	EvPreviousSessions   = "PREVIOUS_SESSIONS"
	EvAdminDataUpdate    = "ADMIN_DATA_UPDATE"
	EvError              = "ERROR"
)

// Marshal frames an event for the wire. A payload that fails to marshal is
// a programming error; callers treat it as such.
func Marshal(event string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Event{Event: event, Payload: raw})
}
