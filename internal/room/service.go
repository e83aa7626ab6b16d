package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/utils"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

const (
	msgInvalidRoomCode = "Invalid Room Code"
	msgSessionEnded    = "This class session has ended."
	msgInternalError   = "internal error"

	joinCodeLength   = 6
	joinCodeAttempts = 10

	// Submitted/discussing markers the client UI keys restoration on.
	statusIdle       = "IDLE"
	statusSubmitted  = "SUBMITTED"
	statusDiscussing = "DISCUSSING"

	opTimeout = 10 * time.Second
)

// codeGenerator lets tests pin join codes.
type codeGenerator func(n int) (string, error)

// Config carries the session-policy knobs the service needs.
type Config struct {
	SurveyLink             string
	DefaultMaxSwapRequests int
	DisconnectDebounce     time.Duration
}

// Service executes room commands: it validates against the resolved user,
// writes through the store, mutates the Room under its lock, and fans out.
// Store commits always precede the fan-out that reports them.
type Service struct {
	store    store.Store
	hub      ws.Emitter
	registry *Registry
	events   *eventlog.Logger
	log      *zap.Logger
	cfg      Config

	genCode codeGenerator
}

var rngSeq uint64

// newRng returns a fresh statistically-fair PRNG; no security requirement
// applies to swap ordering. Per-call instances keep handlers race-free.
func newRng() *rand.Rand {
	seed := time.Now().UnixNano() + int64(atomic.AddUint64(&rngSeq, 1))
	return rand.New(rand.NewSource(seed))
}

func NewService(st store.Store, hub ws.Emitter, registry *Registry, events *eventlog.Logger, log *zap.Logger, cfg Config) *Service {
	if cfg.DisconnectDebounce == 0 {
		cfg.DisconnectDebounce = 3 * time.Second
	}
	return &Service{
		store:    st,
		hub:      hub,
		registry: registry,
		events:   events,
		log:      log,
		cfg:      cfg,
	}
}

// NormalizeCode upper-cases and trims a join code typed by a client.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (s *Service) emitError(c *ws.Client, msg string) {
	s.hub.EmitTo(c.ID, ws.EvError, ErrorPayload{Message: msg})
}

// generateCode indirection exists so tests can pin codes.
func (s *Service) generateCode() (string, error) {
	if s.genCode != nil {
		return s.genCode(joinCodeLength)
	}
	return utils.GenerateCode(joinCodeLength)
}

// StartClass creates the course + ACTIVE session, registers the live room
// and joins the teacher to it.
func (s *Service) StartClass(c *ws.Client) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()

	var (
		course  *models.Course
		session *models.Session
		code    string
	)
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		generated, err := s.generateCode()
		if err != nil {
			s.log.Error("join code generation failed", zap.Error(err))
			s.emitError(c, msgInternalError)
			return
		}
		title := fmt.Sprintf("%s's class", user.Name)
		course, session, err = s.store.CreateCourseWithSession(ctx, user.ID, title, generated, s.cfg.DefaultMaxSwapRequests)
		if errors.Is(err, store.ErrDuplicateJoinCode) {
			continue
		}
		if err != nil {
			s.log.Error("create course+session failed", zap.Error(err))
			s.emitError(c, msgInternalError)
			return
		}
		code = generated
		break
	}
	if code == "" {
		s.emitError(c, "Could not allocate a room code, please try again.")
		return
	}

	room := New(code, course.ID, session.ID, user.ID, session.MaxSwapRequests)
	room.mu.Lock()
	room.addParticipant(&Participant{ConnID: c.ID, UserID: user.ID, Name: user.Name, Role: user.Role})
	room.mu.Unlock()
	s.registry.Put(room)
	s.hub.Join(c.ID, code)

	s.hub.EmitTo(c.ID, ws.EvClassStarted, ClassStartedPayload{
		JoinCode:        code,
		SessionID:       session.ID,
		MaxSwapRequests: session.MaxSwapRequests,
	})
	s.events.Record(eventlog.StartClass, user.ID, map[string]string{
		"joinCode": code, "sessionId": session.ID,
	})
}

// JoinRoom admits a connection into a live room and restores whatever state
// the user's prior connection had for the current prompt.
func (s *Service) JoinRoom(c *ws.Client, p JoinRoomPayload) {
	user := c.User()
	if user == nil {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.rejectMissingRoom(c, code)
		return
	}
	if user.Role == models.RoleTeacher && room.TeacherID == user.ID {
		s.TeacherRejoin(c, p)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	room.mu.Lock()
	pu := room.prompt
	room.mu.Unlock()

	var thoughts []store.ThoughtWithAuthor
	if pu != nil {
		var err error
		thoughts, err = s.store.ListThoughts(ctx, pu.ID)
		if err != nil {
			s.log.Error("list thoughts failed", zap.Error(err))
			s.emitError(c, msgInternalError)
			return
		}
	}
	hasSubmitted := false
	for _, t := range thoughts {
		if t.AuthorID == user.ID {
			hasSubmitted = true
			break
		}
	}

	room.mu.Lock()
	room.addParticipant(&Participant{ConnID: c.ID, UserID: user.ID, Name: user.Name, Role: user.Role})
	assignment, hasAssignment := room.byUser[user.ID]
	if hasAssignment && room.state == StateSwapped {
		room.distribution[c.ID] = assignment
	} else {
		hasAssignment = false
	}
	state := room.state
	sessionID := room.SessionID
	participants := s.participantsPayloadLocked(room, len(thoughts))
	teachers := room.teacherConnIDs()
	room.mu.Unlock()

	s.hub.Join(c.ID, code)
	s.hub.EmitTo(c.ID, ws.EvJoinSuccess, JoinSuccessPayload{JoinCode: code, SessionID: sessionID})
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvParticipantsUpdate, participants)
	}

	if pu != nil {
		switch {
		case hasAssignment && state == StateSwapped:
			s.hub.EmitTo(c.ID, ws.EvReceiveSwap, ReceiveSwapPayload{Content: assignment.Content})
			s.hub.EmitTo(c.ID, ws.EvRestoreState, RestoreStatePayload{
				Status: statusDiscussing, Prompt: pu.Content, PromptUseID: pu.ID,
				Type: pu.Type, Options: pu.Options,
			})
		case hasSubmitted:
			s.hub.EmitTo(c.ID, ws.EvRestoreState, RestoreStatePayload{
				Status: statusSubmitted, Prompt: pu.Content, PromptUseID: pu.ID,
				Type: pu.Type, Options: pu.Options,
			})
		default:
			s.hub.EmitTo(c.ID, ws.EvNewPrompt, PromptPayload{
				Content: pu.Content, PromptUseID: pu.ID, Type: pu.Type, Options: pu.Options,
			})
		}
	}

	s.events.Record(eventlog.JoinRoom, user.ID, map[string]string{"joinCode": code})
}

// rejectMissingRoom distinguishes a bad code from a finished session, and
// sweeps up orphaned ACTIVE sessions left behind by a process restart.
func (s *Service) rejectMissingRoom(c *ws.Client, code string) {
	ctx, cancel := opCtx()
	defer cancel()
	session, _, err := s.store.FindSessionByJoinCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if err != nil {
		s.log.Error("session lookup failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}
	if session.Status == models.SessionActive {
		if err := s.store.CompleteSession(ctx, session.ID); err != nil {
			s.log.Error("orphan session completion failed", zap.Error(err))
		}
	}
	s.emitError(c, msgSessionEnded)
}

// TeacherRejoin reattaches a teacher to their live room, cancelling any
// pending auto-end, or rebuilds the room from the store after a restart.
func (s *Service) TeacherRejoin(c *ws.Client, p JoinRoomPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	ctx, cancel := opCtx()
	defer cancel()

	room, ok := s.registry.Get(code)
	if !ok {
		session, course, err := s.store.FindActiveSessionByJoinCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			s.rejectMissingRoom(c, code)
			return
		}
		if err != nil {
			s.log.Error("session lookup failed", zap.Error(err))
			s.emitError(c, msgInternalError)
			return
		}
		if course.TeacherID != user.ID {
			return
		}
		room = New(code, course.ID, session.ID, user.ID, session.MaxSwapRequests)
		pu, err := s.store.LatestPromptUse(ctx, session.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Error("latest prompt lookup failed", zap.Error(err))
			s.emitError(c, msgInternalError)
			return
		}
		if pu != nil {
			room.mu.Lock()
			room.setPrompt(pu)
			room.mu.Unlock()
		}
		s.registry.Put(room)
	}
	if room.TeacherID != user.ID {
		return
	}

	room.mu.Lock()
	room.cancelEndTimer()
	room.addParticipant(&Participant{ConnID: c.ID, UserID: user.ID, Name: user.Name, Role: user.Role})
	pu := room.prompt
	sessionID := room.SessionID
	maxSwaps := room.MaxSwapRequests
	distribution := s.distributionPayloadLocked(room)
	room.mu.Unlock()

	var thoughts []store.ThoughtWithAuthor
	if pu != nil {
		var err error
		thoughts, err = s.store.ListThoughts(ctx, pu.ID)
		if err != nil {
			s.log.Error("list thoughts failed", zap.Error(err))
			thoughts = nil
		}
	}

	room.mu.Lock()
	participants := s.participantsPayloadLocked(room, len(thoughts))
	room.mu.Unlock()

	s.hub.Join(c.ID, code)
	s.hub.EmitTo(c.ID, ws.EvClassStarted, ClassStartedPayload{
		JoinCode: code, SessionID: sessionID, MaxSwapRequests: maxSwaps,
	})
	s.hub.EmitTo(c.ID, ws.EvParticipantsUpdate, participants)
	s.hub.EmitTo(c.ID, ws.EvThoughtsUpdate, thoughtsPayloadFrom(thoughts))
	s.hub.EmitTo(c.ID, ws.EvDistributionUpdate, distribution)
}

// EndSession completes the session, notifies the room and destroys it.
func (s *Service) EndSession(c *ws.Client, p JoinRoomPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()
	if err := s.store.CompleteSession(ctx, room.SessionID); err != nil {
		s.log.Error("complete session failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}

	room.mu.Lock()
	room.cancelEndTimer()
	room.mu.Unlock()

	s.hub.EmitToRoom(code, ws.EvSessionEnded, SessionEndedPayload{SurveyLink: s.cfg.SurveyLink})
	s.hub.DropRoom(code)
	s.registry.Remove(code)
	s.events.Record(eventlog.EndSession, user.ID, map[string]string{
		"joinCode": code, "sessionId": room.SessionID,
	})
}

// UpdateSettings changes the per-student re-swap quota for the session.
func (s *Service) UpdateSettings(c *ws.Client, p SettingsPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	if p.MaxSwapRequests < 0 {
		s.emitError(c, "maxSwapRequests must be zero or greater.")
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()
	if err := s.store.UpdateSessionMaxSwaps(ctx, room.SessionID, p.MaxSwapRequests); err != nil {
		s.log.Error("update session settings failed", zap.Error(err))
		s.emitError(c, msgInternalError)
		return
	}

	room.mu.Lock()
	room.MaxSwapRequests = p.MaxSwapRequests
	sessionID := room.SessionID
	room.mu.Unlock()

	s.hub.EmitTo(c.ID, ws.EvClassStarted, ClassStartedPayload{
		JoinCode: code, SessionID: sessionID, MaxSwapRequests: p.MaxSwapRequests,
	})
	s.events.Record(eventlog.UpdateSettings, user.ID, map[string]interface{}{
		"joinCode": code, "maxSwapRequests": p.MaxSwapRequests,
	})
}

// ResetState clears the current prompt and distribution, returning the room
// to idle without ending the session.
func (s *Service) ResetState(c *ws.Client, p JoinRoomPayload) {
	user := c.User()
	if user == nil || user.Role != models.RoleTeacher {
		return
	}
	code := NormalizeCode(p.JoinCode)
	room, ok := s.registry.Get(code)
	if !ok {
		s.emitError(c, msgInvalidRoomCode)
		return
	}
	if room.TeacherID != user.ID {
		return
	}

	room.mu.Lock()
	room.clearPrompt()
	participants := s.participantsPayloadLocked(room, 0)
	teachers := room.teacherConnIDs()
	room.mu.Unlock()

	s.hub.EmitToRoom(code, ws.EvRestoreState, RestoreStatePayload{Status: statusIdle})
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvParticipantsUpdate, participants)
		s.hub.EmitTo(connID, ws.EvThoughtsUpdate, ThoughtsPayload{Thoughts: []ThoughtInfo{}})
		s.hub.EmitTo(connID, ws.EvDistributionUpdate, DistributionPayload{Distribution: map[string]DistributionEntry{}})
	}
	s.events.Record(eventlog.ResetState, user.ID, map[string]string{"joinCode": code})
}

// Disconnect removes the connection from every room it inhabits. A teacher
// disconnect arms the auto-end debounce; rejoining within the window
// cancels it.
func (s *Service) Disconnect(c *ws.Client) {
	user := c.User()
	if user == nil {
		return
	}
	for _, room := range s.registry.Rooms() {
		room.mu.Lock()
		p := room.removeParticipant(c.ID)
		if p == nil {
			room.mu.Unlock()
			continue
		}
		// The byUser mirror keeps the assignment for reconnect restoration.
		delete(room.distribution, c.ID)
		pu := room.prompt
		teacherGone := user.ID == room.TeacherID && !room.userStillPresent(room.TeacherID)
		if teacherGone && room.endTimer == nil {
			r := room
			room.endTimer = time.AfterFunc(s.cfg.DisconnectDebounce, func() { s.autoEnd(r) })
		}
		room.mu.Unlock()

		s.hub.Leave(c.ID, room.JoinCode)
		s.broadcastParticipants(room, pu)
	}
}

// autoEnd fires after the teacher-disconnect debounce. A teacher still live
// in another of their rooms only loses this session; a full disconnect
// completes every ACTIVE session they own, live rooms and orphans alike.
func (s *Service) autoEnd(room *Room) {
	room.mu.Lock()
	room.endTimer = nil
	if room.userStillPresent(room.TeacherID) {
		room.mu.Unlock()
		return
	}
	room.mu.Unlock()

	ctx, cancel := opCtx()
	defer cancel()

	teacherID := room.TeacherID
	doomed := []*Room{room}
	presentElsewhere := false
	for _, r := range s.registry.Rooms() {
		if r.JoinCode == room.JoinCode || r.TeacherID != teacherID {
			continue
		}
		r.mu.Lock()
		present := r.userStillPresent(teacherID)
		r.mu.Unlock()
		if present {
			presentElsewhere = true
		} else {
			doomed = append(doomed, r)
		}
	}

	if presentElsewhere {
		if err := s.store.CompleteSession(ctx, room.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Error("auto-end session completion failed",
				zap.String("session", room.SessionID), zap.Error(err))
		}
		s.endRoom(room)
		return
	}

	completed, err := s.store.CompleteActiveSessionsByTeacher(ctx, teacherID)
	if err != nil {
		s.log.Error("auto-end session completion failed",
			zap.String("teacher", teacherID), zap.Error(err))
	} else if orphans := len(completed) - len(doomed); orphans > 0 {
		s.log.Info("orphaned sessions completed on teacher disconnect",
			zap.String("teacher", teacherID), zap.Int("sessions", orphans))
	}
	for _, r := range doomed {
		s.endRoom(r)
	}
}

// endRoom tears down one live room after its session was completed.
func (s *Service) endRoom(r *Room) {
	r.mu.Lock()
	r.cancelEndTimer()
	r.mu.Unlock()

	s.hub.EmitToRoom(r.JoinCode, ws.EvSessionEnded, SessionEndedPayload{SurveyLink: s.cfg.SurveyLink})
	s.hub.DropRoom(r.JoinCode)
	s.registry.Remove(r.JoinCode)
	s.events.Record(eventlog.SessionAutoEnded, r.TeacherID, map[string]string{
		"joinCode": r.JoinCode, "sessionId": r.SessionID,
	})
}

// broadcastParticipants recomputes the submission count and pushes the
// participant roster to the room's teachers.
func (s *Service) broadcastParticipants(room *Room, pu *models.PromptUse) {
	count := 0
	if pu != nil {
		ctx, cancel := opCtx()
		thoughts, err := s.store.ListThoughts(ctx, pu.ID)
		cancel()
		if err != nil {
			s.log.Error("list thoughts failed", zap.Error(err))
		} else {
			count = len(thoughts)
		}
	}
	room.mu.Lock()
	payload := s.participantsPayloadLocked(room, count)
	teachers := room.teacherConnIDs()
	room.mu.Unlock()
	for _, connID := range teachers {
		s.hub.EmitTo(connID, ws.EvParticipantsUpdate, payload)
	}
}

func (s *Service) participantsPayloadLocked(room *Room, submissionCount int) ParticipantsPayload {
	infos := make([]ParticipantInfo, 0, len(room.participants))
	for _, p := range room.participants {
		if p.Role != models.RoleStudent {
			continue
		}
		infos = append(infos, ParticipantInfo{ConnectionID: p.ConnID, Name: p.Name})
	}
	return ParticipantsPayload{Participants: infos, SubmissionCount: submissionCount}
}

func (s *Service) distributionPayloadLocked(room *Room) DistributionPayload {
	out := make(map[string]DistributionEntry, len(room.distribution))
	for connID, a := range room.distribution {
		name := ""
		if p, ok := room.participants[connID]; ok {
			name = p.Name
		}
		out[connID] = DistributionEntry{
			StudentName:        name,
			ThoughtContent:     a.Content,
			OriginalAuthorName: a.AuthorName,
		}
	}
	return DistributionPayload{Distribution: out}
}

func thoughtsPayloadFrom(thoughts []store.ThoughtWithAuthor) ThoughtsPayload {
	infos := make([]ThoughtInfo, 0, len(thoughts))
	for _, t := range thoughts {
		infos = append(infos, ThoughtInfo{ID: t.ID, Content: t.Content, AuthorName: t.AuthorName})
	}
	return ThoughtsPayload{Thoughts: infos}
}
