package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

func seedTeacherSession(t *testing.T, m *Memory) (*models.User, *models.Course, *models.Session) {
	t.Helper()
	ctx := context.Background()
	teacher, err := m.UpsertUser(ctx, UpsertUserParams{Email: "t@example.com", Name: "Pat", Role: models.RoleTeacher})
	require.NoError(t, err)
	course, session, err := m.CreateCourseWithSession(ctx, teacher.ID, "Pat's class", "ABC123", 1)
	require.NoError(t, err)
	return teacher, course, session
}

func TestMemoryUpsertUserMatchesByEmailAndExternalID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ext := "lms-42"
	first, err := m.UpsertUser(ctx, UpsertUserParams{ExternalID: &ext, Email: "a@example.com", Name: "Ana", Role: models.RoleStudent})
	require.NoError(t, err)

	// Same external id with a changed email updates in place.
	second, err := m.UpsertUser(ctx, UpsertUserParams{ExternalID: &ext, Email: "a@example.com", Name: "Ana B", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ana B", second.Name)
	assert.Equal(t, models.RoleTeacher, second.Role)

	third, err := m.UpsertUser(ctx, UpsertUserParams{Email: "b@example.com", Name: "Ben", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestMemoryDuplicateJoinCode(t *testing.T) {
	m := NewMemory()
	teacher, _, _ := seedTeacherSession(t, m)

	_, _, err := m.CreateCourseWithSession(context.Background(), teacher.ID, "again", "ABC123", 1)
	assert.ErrorIs(t, err, ErrDuplicateJoinCode)
}

func TestMemorySessionLookupAndCompletion(t *testing.T) {
	m := NewMemory()
	_, _, session := seedTeacherSession(t, m)
	ctx := context.Background()

	found, _, err := m.FindActiveSessionByJoinCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)

	require.NoError(t, m.CompleteSession(ctx, session.ID))

	_, _, err = m.FindActiveSessionByJoinCode(ctx, "ABC123")
	assert.ErrorIs(t, err, ErrNotFound)

	completed, _, err := m.FindSessionByJoinCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, completed.Status)
}

func TestMemoryThoughtUniquePerAuthor(t *testing.T) {
	m := NewMemory()
	_, _, session := seedTeacherSession(t, m)
	ctx := context.Background()

	student, err := m.UpsertUser(ctx, UpsertUserParams{Email: "s@example.com", Name: "Sam", Role: models.RoleStudent})
	require.NoError(t, err)
	pu, err := m.AppendPromptUse(ctx, session.ID, "prompt", models.PromptText, nil)
	require.NoError(t, err)

	first, err := m.InsertThought(ctx, pu.ID, student.ID, "one")
	require.NoError(t, err)

	_, err = m.InsertThought(ctx, pu.ID, student.ID, "two")
	assert.ErrorIs(t, err, ErrDuplicateThought)

	// Deleting frees the slot for a resubmission.
	_, deletedPU, err := m.DeleteThought(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, pu.ID, deletedPU.ID)

	_, err = m.InsertThought(ctx, pu.ID, student.ID, "two")
	require.NoError(t, err)

	rows, err := m.ListThoughts(ctx, pu.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "two", rows[0].Content)
	assert.Equal(t, "Sam", rows[0].AuthorName)
}

func TestMemorySwapRequestLedger(t *testing.T) {
	m := NewMemory()
	_, _, session := seedTeacherSession(t, m)
	ctx := context.Background()

	n, err := m.CountSwapRequests(ctx, "student-1", session.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.RecordSwapRequest(ctx, "student-1", session.ID))
	require.NoError(t, m.RecordSwapRequest(ctx, "student-1", session.ID))
	require.NoError(t, m.RecordSwapRequest(ctx, "student-2", session.ID))

	n, err = m.CountSwapRequests(ctx, "student-1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemorySavedPromptOwnership(t *testing.T) {
	m := NewMemory()
	teacher, _, _ := seedTeacherSession(t, m)
	ctx := context.Background()

	sp, err := m.CreateSavedPrompt(ctx, teacher.ID, "reusable", models.PromptText, nil)
	require.NoError(t, err)

	err = m.DeleteSavedPrompt(ctx, "someone-else", sp.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, m.DeleteSavedPrompt(ctx, teacher.ID, sp.ID))
	prompts, err := m.ListSavedPrompts(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestMemoryConsentFiltering(t *testing.T) {
	m := NewMemory()
	_, _, session := seedTeacherSession(t, m)
	ctx := context.Background()

	yes, err := m.UpsertUser(ctx, UpsertUserParams{Email: "yes@example.com", Name: "Yes", Role: models.RoleStudent})
	require.NoError(t, err)
	no, err := m.UpsertUser(ctx, UpsertUserParams{Email: "no@example.com", Name: "No", Role: models.RoleStudent})
	require.NoError(t, err)
	_, err = m.RecordConsent(ctx, yes.ID, true, time.Now())
	require.NoError(t, err)

	pu, err := m.AppendPromptUse(ctx, session.ID, "prompt", models.PromptText, nil)
	require.NoError(t, err)
	_, err = m.InsertThought(ctx, pu.ID, yes.ID, "visible")
	require.NoError(t, err)
	_, err = m.InsertThought(ctx, pu.ID, no.ID, "hidden")
	require.NoError(t, err)

	rows, err := m.ListConsentedThoughts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "visible", rows[0].Content)

	require.NoError(t, m.RecordSwapRequest(ctx, yes.ID, session.ID))
	require.NoError(t, m.RecordSwapRequest(ctx, no.ID, session.ID))
	reqs, err := m.ListConsentedSwapRequests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, yes.ID, reqs[0].StudentID)

	total, consented, err := m.UserStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), consented)
}

func TestMemoryRecentLogEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, ev := range []string{"A", "B", "C"} {
		require.NoError(t, m.AppendLogEvent(ctx, ev, nil, nil))
	}
	rows, err := m.RecentLogEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[0].Event)
	assert.Equal(t, "B", rows[1].Event)
}
