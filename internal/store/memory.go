package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

// Memory is a mutex-guarded in-memory store. It backs tests and
// STORE_DRIVER=memory development runs; semantics mirror the gorm store.
type Memory struct {
	mu           sync.Mutex
	users        map[string]*models.User
	courses      map[string]*models.Course
	sessions     map[string]*models.Session
	promptUses   []*models.PromptUse
	thoughts     map[string]*models.Thought
	swapRequests []*models.SwapRequest
	savedPrompts map[string]*models.SavedPrompt
	logEvents    []*models.LogEvent
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]*models.User),
		courses:      make(map[string]*models.Course),
		sessions:     make(map[string]*models.Session),
		thoughts:     make(map[string]*models.Thought),
		savedPrompts: make(map[string]*models.SavedPrompt),
	}
}

func (m *Memory) UpsertUser(ctx context.Context, p UpsertUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		match := u.Email == p.Email
		if !match && p.ExternalID != nil && u.ExternalID != nil && *u.ExternalID == *p.ExternalID {
			match = true
		}
		if match {
			u.Name = p.Name
			u.Role = p.Role
			if p.ExternalID != nil {
				u.ExternalID = p.ExternalID
			}
			if p.Password != "" {
				u.Password = p.Password
			}
			cp := *u
			return &cp, nil
		}
	}
	u := &models.User{
		ID:         uuid.NewString(),
		ExternalID: p.ExternalID,
		Email:      p.Email,
		Name:       p.Name,
		Role:       p.Role,
		Password:   p.Password,
		CreatedAt:  time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) RecordConsent(ctx context.Context, userID string, given bool, at time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u.ConsentGiven = given
	u.ConsentDate = &at
	cp := *u
	return &cp, nil
}

func (m *Memory) CreateCourseWithSession(ctx context.Context, teacherID, title, joinCode string, maxSwapRequests int) (*models.Course, *models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.JoinCode == joinCode {
			return nil, nil, ErrDuplicateJoinCode
		}
	}
	course := &models.Course{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Title:     title,
		JoinCode:  joinCode,
		CreatedAt: time.Now(),
	}
	session := &models.Session{
		ID:              uuid.NewString(),
		CourseID:        course.ID,
		Status:          models.SessionActive,
		MaxSwapRequests: maxSwapRequests,
		CreatedAt:       time.Now(),
	}
	m.courses[course.ID] = course
	m.sessions[session.ID] = session
	courseCp, sessionCp := *course, *session
	return &courseCp, &sessionCp, nil
}

func (m *Memory) findSessionByJoinCode(joinCode string, activeOnly bool) (*models.Session, *models.Course, error) {
	var course *models.Course
	for _, c := range m.courses {
		if c.JoinCode == joinCode {
			course = c
			break
		}
	}
	if course == nil {
		return nil, nil, ErrNotFound
	}
	var latest *models.Session
	for _, s := range m.sessions {
		if s.CourseID != course.ID {
			continue
		}
		if activeOnly && s.Status != models.SessionActive {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil, ErrNotFound
	}
	sessionCp, courseCp := *latest, *course
	return &sessionCp, &courseCp, nil
}

func (m *Memory) FindActiveSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findSessionByJoinCode(joinCode, true)
}

func (m *Memory) FindSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findSessionByJoinCode(joinCode, false)
}

func (m *Memory) UpdateSessionMaxSwaps(ctx context.Context, sessionID string, maxSwapRequests int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.MaxSwapRequests = maxSwapRequests
	return nil
}

func (m *Memory) CompleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Status = models.SessionCompleted
	return nil
}

func (m *Memory) CompleteActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var completed []models.Session
	for _, s := range m.sessions {
		course, ok := m.courses[s.CourseID]
		if !ok || course.TeacherID != teacherID || s.Status != models.SessionActive {
			continue
		}
		s.Status = models.SessionCompleted
		completed = append(completed, *s)
	}
	return completed, nil
}

func (m *Memory) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []SessionSummary
	for _, s := range m.sessions {
		course, ok := m.courses[s.CourseID]
		if !ok || course.TeacherID != teacherID {
			continue
		}
		count := 0
		for _, pu := range m.promptUses {
			if pu.SessionID == s.ID {
				count++
			}
		}
		rows = append(rows, SessionSummary{
			SessionID:   s.ID,
			JoinCode:    course.JoinCode,
			Title:       course.Title,
			Status:      s.Status,
			PromptCount: count,
			CreatedAt:   s.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (m *Memory) AppendPromptUse(ctx context.Context, sessionID, content, promptType string, options []string) (*models.PromptUse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	pu := &models.PromptUse{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Type:      promptType,
		Options:   options,
		CreatedAt: time.Now(),
	}
	m.promptUses = append(m.promptUses, pu)
	cp := *pu
	return &cp, nil
}

func (m *Memory) LatestPromptUse(ctx context.Context, sessionID string) (*models.PromptUse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.promptUses) - 1; i >= 0; i-- {
		if m.promptUses[i].SessionID == sessionID {
			cp := *m.promptUses[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) InsertThought(ctx context.Context, promptUseID, authorID, content string) (*models.Thought, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.thoughts {
		if t.PromptUseID == promptUseID && t.AuthorID == authorID {
			return nil, ErrDuplicateThought
		}
	}
	t := &models.Thought{
		ID:          uuid.NewString(),
		PromptUseID: promptUseID,
		AuthorID:    authorID,
		Content:     content,
		CreatedAt:   time.Now(),
	}
	m.thoughts[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *Memory) DeleteThought(ctx context.Context, thoughtID string) (*models.Thought, *models.PromptUse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.thoughts[thoughtID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	var pu *models.PromptUse
	for _, p := range m.promptUses {
		if p.ID == t.PromptUseID {
			pu = p
			break
		}
	}
	if pu == nil {
		return nil, nil, ErrNotFound
	}
	delete(m.thoughts, thoughtID)
	thoughtCp, puCp := *t, *pu
	return &thoughtCp, &puCp, nil
}

func (m *Memory) ListThoughts(ctx context.Context, promptUseID string) ([]ThoughtWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []ThoughtWithAuthor
	for _, t := range m.thoughts {
		if t.PromptUseID != promptUseID {
			continue
		}
		row := ThoughtWithAuthor{Thought: *t}
		if u, ok := m.users[t.AuthorID]; ok {
			row.AuthorName = u.Name
			row.AuthorConsent = u.ConsentGiven
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

func (m *Memory) CountSwapRequests(ctx context.Context, studentID, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.swapRequests {
		if r.StudentID == studentID && r.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) RecordSwapRequest(ctx context.Context, studentID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapRequests = append(m.swapRequests, &models.SwapRequest{
		ID:        uuid.NewString(),
		StudentID: studentID,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *Memory) CreateSavedPrompt(ctx context.Context, teacherID, content, promptType string, options []string) (*models.SavedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp := &models.SavedPrompt{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Content:   content,
		Type:      promptType,
		Options:   options,
		CreatedAt: time.Now(),
	}
	m.savedPrompts[sp.ID] = sp
	cp := *sp
	return &cp, nil
}

func (m *Memory) ListSavedPrompts(ctx context.Context, teacherID string) ([]models.SavedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prompts []models.SavedPrompt
	for _, sp := range m.savedPrompts {
		if sp.TeacherID == teacherID {
			prompts = append(prompts, *sp)
		}
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].CreatedAt.After(prompts[j].CreatedAt) })
	return prompts, nil
}

func (m *Memory) DeleteSavedPrompt(ctx context.Context, teacherID, promptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.savedPrompts[promptID]
	if !ok {
		return ErrNotFound
	}
	if sp.TeacherID != teacherID {
		return ErrForbidden
	}
	delete(m.savedPrompts, promptID)
	return nil
}

func (m *Memory) AppendLogEvent(ctx context.Context, event string, userID *string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logEvents = append(m.logEvents, &models.LogEvent{
		ID:        uuid.NewString(),
		Event:     event,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *Memory) ListActiveSessions(ctx context.Context) ([]ActiveSessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []ActiveSessionInfo
	for _, s := range m.sessions {
		if s.Status != models.SessionActive {
			continue
		}
		course, ok := m.courses[s.CourseID]
		if !ok {
			continue
		}
		count := 0
		for _, pu := range m.promptUses {
			if pu.SessionID == s.ID {
				count++
			}
		}
		rows = append(rows, ActiveSessionInfo{
			SessionID:   s.ID,
			CourseID:    course.ID,
			Title:       course.Title,
			JoinCode:    course.JoinCode,
			TeacherID:   course.TeacherID,
			PromptCount: count,
			CreatedAt:   s.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (m *Memory) ListConsentedThoughts(ctx context.Context) ([]ThoughtWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []ThoughtWithAuthor
	for _, t := range m.thoughts {
		u, ok := m.users[t.AuthorID]
		if !ok || !u.ConsentGiven {
			continue
		}
		rows = append(rows, ThoughtWithAuthor{Thought: *t, AuthorName: u.Name, AuthorConsent: true})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (m *Memory) ListConsentedSwapRequests(ctx context.Context) ([]models.SwapRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.SwapRequest
	for _, r := range m.swapRequests {
		u, ok := m.users[r.StudentID]
		if !ok || !u.ConsentGiven {
			continue
		}
		rows = append(rows, *r)
	}
	return rows, nil
}

func (m *Memory) RecentLogEvents(ctx context.Context, limit int) ([]models.LogEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.LogEvent
	for i := len(m.logEvents) - 1; i >= 0 && len(rows) < limit; i-- {
		rows = append(rows, *m.logEvents[i])
	}
	return rows, nil
}

func (m *Memory) UserStats(ctx context.Context) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, consented int64
	for _, u := range m.users {
		total++
		if u.ConsentGiven {
			consented++
		}
	}
	return total, consented, nil
}
