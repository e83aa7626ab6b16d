package room

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/eventlog"
	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
	"github.com/thoughtswap/thoughtswap/internal/ws"
)

type frame struct {
	ConnID  string
	Room    string
	Event   string
	Payload interface{}
}

// fakeEmitter records fan-out instead of writing to sockets.
type fakeEmitter struct {
	mu     sync.Mutex
	frames []frame
}

func (f *fakeEmitter) EmitTo(connID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{ConnID: connID, Event: event, Payload: payload})
}

func (f *fakeEmitter) EmitToRoom(joinCode, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{Room: joinCode, Event: event, Payload: payload})
}

func (f *fakeEmitter) Join(connID, joinCode string)  {}
func (f *fakeEmitter) Leave(connID, joinCode string) {}
func (f *fakeEmitter) DropRoom(joinCode string)      {}

func (f *fakeEmitter) lastTo(connID, event string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].ConnID == connID && f.frames[i].Event == event {
			return f.frames[i].Payload, true
		}
	}
	return nil, false
}

func (f *fakeEmitter) lastToRoom(joinCode, event string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Room == joinCode && f.frames[i].Event == event {
			return f.frames[i].Payload, true
		}
	}
	return nil, false
}

func (f *fakeEmitter) errorsTo(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []string
	for _, fr := range f.frames {
		if fr.ConnID == connID && fr.Event == ws.EvError {
			msgs = append(msgs, fr.Payload.(ErrorPayload).Message)
		}
	}
	return msgs
}

func (f *fakeEmitter) countTo(connID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.ConnID == connID && fr.Event == event {
			n++
		}
	}
	return n
}

type harness struct {
	svc *Service
	st  *store.Memory
	em  *fakeEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := store.NewMemory()
	em := &fakeEmitter{}
	svc := NewService(st, em, NewRegistry(), eventlog.New(st, zap.NewNop()), zap.NewNop(), Config{
		DefaultMaxSwapRequests: 1,
		DisconnectDebounce:     20 * time.Millisecond,
	})
	var seq int
	svc.genCode = func(int) (string, error) {
		seq++
		return fmt.Sprintf("ROOM%02d", seq), nil
	}
	return &harness{svc: svc, st: st, em: em}
}

func (h *harness) user(t *testing.T, email, name, role string) *models.User {
	t.Helper()
	u, err := h.st.UpsertUser(context.Background(), store.UpsertUserParams{Email: email, Name: name, Role: role})
	require.NoError(t, err)
	return u
}

func testClient(id string, u *models.User) *ws.Client {
	c := ws.NewClient(id, nil, zap.NewNop())
	c.SetUser(u)
	return c
}

func (h *harness) startClass(t *testing.T) (*ws.Client, string) {
	t.Helper()
	teacher := h.user(t, "teacher@example.com", "Pat", models.RoleTeacher)
	tc := testClient("t1", teacher)
	h.svc.StartClass(tc)
	p, ok := h.em.lastTo("t1", ws.EvClassStarted)
	require.True(t, ok, "teacher never received CLASS_STARTED")
	return tc, p.(ClassStartedPayload).JoinCode
}

func (h *harness) joinStudent(t *testing.T, code, connID, email, name string) *ws.Client {
	t.Helper()
	u := h.user(t, email, name, models.RoleStudent)
	c := testClient(connID, u)
	h.svc.JoinRoom(c, JoinRoomPayload{JoinCode: code})
	_, ok := h.em.lastTo(connID, ws.EvJoinSuccess)
	require.True(t, ok, "student %s never received JOIN_SUCCESS", connID)
	return c
}

func (h *harness) sendPrompt(t *testing.T, tc *ws.Client, code, content string) string {
	t.Helper()
	h.svc.SendPrompt(tc, SendPromptPayload{JoinCode: code, Content: content, Type: models.PromptText})
	p, ok := h.em.lastToRoom(code, ws.EvNewPrompt)
	require.True(t, ok, "NEW_PROMPT never reached the room")
	return p.(PromptPayload).PromptUseID
}

func (h *harness) submit(t *testing.T, c *ws.Client, code, puID, content string) {
	t.Helper()
	h.svc.SubmitThought(c, SubmitThoughtPayload{JoinCode: code, PromptUseID: puID, Content: content})
}

func (h *harness) receivedSwap(t *testing.T, connID string) string {
	t.Helper()
	p, ok := h.em.lastTo(connID, ws.EvReceiveSwap)
	require.True(t, ok, "%s never received RECEIVE_SWAP", connID)
	return p.(ReceiveSwapPayload).Content
}

func TestStartClassRegistersRoom(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)

	assert.Equal(t, "ROOM01", code)
	_, ok := h.svc.registry.Get(code)
	assert.True(t, ok)

	session, course, err := h.st.FindActiveSessionByJoinCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, tc.User().ID, course.TeacherID)
	assert.Equal(t, "Pat's class", course.Title)
	assert.Equal(t, 1, session.MaxSwapRequests)
}

func TestStartClassRequiresTeacher(t *testing.T) {
	h := newHarness(t)
	student := h.user(t, "s@example.com", "Sam", models.RoleStudent)
	c := testClient("c1", student)
	h.svc.StartClass(c)
	assert.Zero(t, h.em.countTo("c1", ws.EvClassStarted))
}

func TestJoinRoomInvalidCode(t *testing.T) {
	h := newHarness(t)
	student := h.user(t, "s@example.com", "Sam", models.RoleStudent)
	c := testClient("c1", student)
	h.svc.JoinRoom(c, JoinRoomPayload{JoinCode: "zzzzzz"})
	assert.Contains(t, h.em.errorsTo("c1"), "Invalid Room Code")
}

func TestJoinRoomAfterSessionEnded(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	h.svc.EndSession(tc, JoinRoomPayload{JoinCode: code})

	_, ok := h.em.lastToRoom(code, ws.EvSessionEnded)
	assert.True(t, ok)
	_, ok = h.svc.registry.Get(code)
	assert.False(t, ok)

	student := h.user(t, "s@example.com", "Sam", models.RoleStudent)
	c := testClient("c1", student)
	h.svc.JoinRoom(c, JoinRoomPayload{JoinCode: code})
	assert.Contains(t, h.em.errorsTo("c1"), "This class session has ended.")
}

func TestPromptSubmitSwapFlow(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")

	puID := h.sendPrompt(t, tc, code, "What surprised you today?")
	h.submit(t, s1, code, puID, "thought of ana")
	h.submit(t, s2, code, puID, "thought of ben")

	p, ok := h.em.lastTo("t1", ws.EvThoughtsUpdate)
	require.True(t, ok)
	assert.Len(t, p.(ThoughtsPayload).Thoughts, 2)

	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})

	assert.Equal(t, "thought of ben", h.receivedSwap(t, "c1"))
	assert.Equal(t, "thought of ana", h.receivedSwap(t, "c2"))

	sc, ok := h.em.lastTo("t1", ws.EvSwapCompleted)
	require.True(t, ok)
	assert.Equal(t, 2, sc.(SwapCompletedPayload).Count)

	dp, ok := h.em.lastTo("t1", ws.EvDistributionUpdate)
	require.True(t, ok)
	dist := dp.(DistributionPayload).Distribution
	require.Len(t, dist, 2)
	assert.Equal(t, "Ana", dist["c1"].StudentName)
	assert.Equal(t, "Ben", dist["c1"].OriginalAuthorName)
}

func TestSubmitThoughtDuplicateRejected(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	puID := h.sendPrompt(t, tc, code, "prompt")

	h.submit(t, s1, code, puID, "first")
	h.submit(t, s1, code, puID, "second")
	assert.Contains(t, h.em.errorsTo("c1"), "You have already submitted a thought for this prompt.")
}

func TestSubmitThoughtStalePromptDiscarded(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	puID := h.sendPrompt(t, tc, code, "prompt")

	h.submit(t, s1, code, "not-the-current-prompt", "late answer")
	assert.Empty(t, h.em.errorsTo("c1"))

	rows, err := h.st.ListThoughts(context.Background(), puID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteThoughtAllowsResubmit(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "first try")

	rows, err := h.st.ListThoughts(context.Background(), puID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	h.svc.DeleteThought(tc, DeleteThoughtPayload{JoinCode: code, ThoughtID: rows[0].ID})
	_, ok := h.em.lastTo("c1", ws.EvThoughtDeleted)
	assert.True(t, ok)

	h.submit(t, s1, code, puID, "second try")
	rows, err = h.st.ListThoughts(context.Background(), puID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "second try", rows[0].Content)
}

func TestTriggerSwapPreconditions(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)

	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})
	assert.Contains(t, h.em.errorsTo("t1"), "Send a prompt before swapping.")

	h.sendPrompt(t, tc, code, "prompt")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})
	assert.Contains(t, h.em.errorsTo("t1"), "No thoughts have been submitted yet.")
}

func TestRequestNewThoughtQuota(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")
	s3 := h.joinStudent(t, code, "c3", "c@example.com", "Cam")

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.submit(t, s3, code, puID, "from cam")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})

	current := h.receivedSwap(t, "c1")
	h.svc.RequestNewThought(s1, RequestNewThoughtPayload{JoinCode: code, CurrentThoughtContent: current})

	replacement := h.receivedSwap(t, "c1")
	assert.NotEqual(t, current, replacement)
	assert.NotEqual(t, "from ana", replacement)

	h.svc.RequestNewThought(s1, RequestNewThoughtPayload{JoinCode: code, CurrentThoughtContent: replacement})
	assert.Contains(t, h.em.errorsTo("c1"),
		"Limit reached: you have used all 1 swap request(s) for this session.")
}

func TestRequestNewThoughtZeroQuota(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")

	h.svc.UpdateSettings(tc, SettingsPayload{JoinCode: code, MaxSwapRequests: 0})
	p, ok := h.em.lastTo("t1", ws.EvClassStarted)
	require.True(t, ok)
	assert.Equal(t, 0, p.(ClassStartedPayload).MaxSwapRequests)

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})

	h.svc.RequestNewThought(s1, RequestNewThoughtPayload{JoinCode: code, CurrentThoughtContent: h.receivedSwap(t, "c1")})
	assert.Contains(t, h.em.errorsTo("c1"),
		"Limit reached: you have used all 0 swap request(s) for this session.")
}

func TestReassignIsQuotaExempt(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")
	s3 := h.joinStudent(t, code, "c3", "c@example.com", "Cam")

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.submit(t, s3, code, puID, "from cam")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})

	before := h.receivedSwap(t, "c1")
	h.svc.Reassign(tc, ReassignPayload{JoinCode: code, StudentConnectionID: "c1"})
	after := h.receivedSwap(t, "c1")
	assert.NotEqual(t, before, after)
	assert.NotEqual(t, "from ana", after)

	used, err := h.st.CountSwapRequests(context.Background(), s1.User().ID, sessionIDFor(t, h, code))
	require.NoError(t, err)
	assert.Zero(t, used)
}

func sessionIDFor(t *testing.T, h *harness, code string) string {
	t.Helper()
	room, ok := h.svc.registry.Get(code)
	require.True(t, ok)
	return room.SessionID
}

func TestResetStateReturnsRoomToIdle(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")

	h.svc.ResetState(tc, JoinRoomPayload{JoinCode: code})

	p, ok := h.em.lastToRoom(code, ws.EvRestoreState)
	require.True(t, ok)
	assert.Equal(t, "IDLE", p.(RestoreStatePayload).Status)

	room, ok := h.svc.registry.Get(code)
	require.True(t, ok)
	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, StateIdle, room.state)
	assert.Nil(t, room.prompt)
}

func TestSendPromptValidation(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)

	h.svc.SendPrompt(tc, SendPromptPayload{JoinCode: code, Content: "   ", Type: models.PromptText})
	assert.Contains(t, h.em.errorsTo("t1"), "Prompt content must not be empty.")

	h.svc.SendPrompt(tc, SendPromptPayload{JoinCode: code, Content: "pick one", Type: models.PromptMC, Options: []string{"only"}})
	assert.Contains(t, h.em.errorsTo("t1"), "Multiple-choice prompts need between 2 and 6 options.")

	h.svc.SendPrompt(tc, SendPromptPayload{JoinCode: code, Content: "pick one", Type: "RANKING"})
	assert.Contains(t, h.em.errorsTo("t1"), "Unknown prompt type.")
}

func TestTeacherDisconnectAutoEndsSession(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	h.joinStudent(t, code, "c1", "a@example.com", "Ana")

	h.svc.Disconnect(tc)

	require.Eventually(t, func() bool {
		session, _, err := h.st.FindSessionByJoinCode(context.Background(), code)
		if err != nil {
			return false
		}
		return session.Status == models.SessionCompleted
	}, time.Second, 10*time.Millisecond)

	_, ok := h.svc.registry.Get(code)
	assert.False(t, ok)
	_, ok = h.em.lastToRoom(code, ws.EvSessionEnded)
	assert.True(t, ok)
}

func TestTeacherRejoinCancelsAutoEnd(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	h.svc.Disconnect(tc)

	tc2 := testClient("t2", tc.User())
	h.svc.TeacherRejoin(tc2, JoinRoomPayload{JoinCode: code})
	_, ok := h.em.lastTo("t2", ws.EvClassStarted)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	session, _, err := h.st.FindSessionByJoinCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)
	_, ok = h.svc.registry.Get(code)
	assert.True(t, ok)
}

func TestStudentReconnectRestoresAssignment(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})
	assigned := h.receivedSwap(t, "c1")

	h.svc.Disconnect(s1)
	s1b := testClient("c1b", s1.User())
	h.svc.JoinRoom(s1b, JoinRoomPayload{JoinCode: code})

	assert.Equal(t, assigned, h.receivedSwap(t, "c1b"))
	p, ok := h.em.lastTo("c1b", ws.EvRestoreState)
	require.True(t, ok)
	assert.Equal(t, "DISCUSSING", p.(RestoreStatePayload).Status)
}

func TestStudentReconnectAfterSubmitRestoresSubmitted(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")

	h.svc.Disconnect(s1)
	s1b := testClient("c1b", s1.User())
	h.svc.JoinRoom(s1b, JoinRoomPayload{JoinCode: code})

	p, ok := h.em.lastTo("c1b", ws.EvRestoreState)
	require.True(t, ok)
	assert.Equal(t, "SUBMITTED", p.(RestoreStatePayload).Status)
}

func TestJoinCodeNormalization(t *testing.T) {
	h := newHarness(t)
	_, code := h.startClass(t)
	student := h.user(t, "s@example.com", "Sam", models.RoleStudent)
	c := testClient("c1", student)
	h.svc.JoinRoom(c, JoinRoomPayload{JoinCode: "  " + strings.ToLower(code) + " "})
	_, ok := h.em.lastTo("c1", ws.EvJoinSuccess)
	assert.True(t, ok)
}

func TestSubmitThoughtRequiresStudent(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	puID := h.sendPrompt(t, tc, code, "prompt")

	h.submit(t, tc, code, puID, "from the teacher")

	assert.Empty(t, h.em.errorsTo("t1"))
	rows, err := h.st.ListThoughts(context.Background(), puID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTeacherDisconnectCompletesAllOwnedSessions(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)

	// A leftover ACTIVE session with no live room, e.g. from before a restart.
	_, orphan, err := h.st.CreateCourseWithSession(context.Background(), tc.User().ID, "old class", "ORPH01", 1)
	require.NoError(t, err)

	h.svc.Disconnect(tc)

	require.Eventually(t, func() bool {
		session, _, err := h.st.FindSessionByJoinCode(context.Background(), code)
		return err == nil && session.Status == models.SessionCompleted
	}, time.Second, 10*time.Millisecond)

	swept, _, err := h.st.FindSessionByJoinCode(context.Background(), "ORPH01")
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, swept.ID)
	assert.Equal(t, models.SessionCompleted, swept.Status)
}

func TestTeacherDisconnectSparesRoomsWhereStillPresent(t *testing.T) {
	h := newHarness(t)
	teacher := h.user(t, "teacher@example.com", "Pat", models.RoleTeacher)

	tc1 := testClient("t1", teacher)
	h.svc.StartClass(tc1)
	p1, ok := h.em.lastTo("t1", ws.EvClassStarted)
	require.True(t, ok)
	codeA := p1.(ClassStartedPayload).JoinCode

	tc2 := testClient("t2", teacher)
	h.svc.StartClass(tc2)
	p2, ok := h.em.lastTo("t2", ws.EvClassStarted)
	require.True(t, ok)
	codeB := p2.(ClassStartedPayload).JoinCode

	h.svc.Disconnect(tc1)

	require.Eventually(t, func() bool {
		session, _, err := h.st.FindSessionByJoinCode(context.Background(), codeA)
		return err == nil && session.Status == models.SessionCompleted
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	session, _, err := h.st.FindSessionByJoinCode(context.Background(), codeB)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)
	_, ok = h.svc.registry.Get(codeB)
	assert.True(t, ok)
}

func TestDisconnectPrunesDistributionEntry(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})
	assigned := h.receivedSwap(t, "c1")

	h.svc.Disconnect(s1)

	room, ok := h.svc.registry.Get(code)
	require.True(t, ok)
	room.mu.Lock()
	_, stale := room.distribution["c1"]
	mirrored, hasMirror := room.byUser[s1.User().ID]
	room.mu.Unlock()
	assert.False(t, stale, "departed connection still listed in the distribution")
	require.True(t, hasMirror)
	assert.Equal(t, assigned, mirrored.Content)

	s1b := testClient("c1b", s1.User())
	h.svc.JoinRoom(s1b, JoinRoomPayload{JoinCode: code})
	room.mu.Lock()
	_, replaced := room.distribution["c1b"]
	room.mu.Unlock()
	assert.True(t, replaced)
}

func TestRequestNewThoughtQuotaUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	tc, code := h.startClass(t)
	s1 := h.joinStudent(t, code, "c1", "a@example.com", "Ana")
	s1b := testClient("c1b", s1.User())
	h.svc.JoinRoom(s1b, JoinRoomPayload{JoinCode: code})
	s2 := h.joinStudent(t, code, "c2", "b@example.com", "Ben")
	s3 := h.joinStudent(t, code, "c3", "c@example.com", "Cam")

	puID := h.sendPrompt(t, tc, code, "prompt")
	h.submit(t, s1, code, puID, "from ana")
	h.submit(t, s2, code, puID, "from ben")
	h.submit(t, s3, code, puID, "from cam")
	h.svc.TriggerSwap(tc, JoinRoomPayload{JoinCode: code})

	var wg sync.WaitGroup
	for _, c := range []*ws.Client{s1, s1b} {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(c *ws.Client) {
				defer wg.Done()
				h.svc.RequestNewThought(c, RequestNewThoughtPayload{JoinCode: code})
			}(c)
		}
	}
	wg.Wait()

	used, err := h.st.CountSwapRequests(context.Background(), s1.User().ID, sessionIDFor(t, h, code))
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}
