package store

import (
	"context"
	"errors"
	"time"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrDuplicateJoinCode = errors.New("store: join code already in use")
	ErrDuplicateThought  = errors.New("store: author already has a thought for this prompt")
	ErrForbidden         = errors.New("store: operation not permitted for this owner")
)

// UpsertUserParams identifies a user by external id when present, otherwise
// by email.
type UpsertUserParams struct {
	ExternalID *string
	Email      string
	Name       string
	Role       string
	// Password is set only by the admin seed; empty means leave untouched.
	Password string
}

// ThoughtWithAuthor joins a thought with its author's display name and
// consent flag for teacher dashboards and the admin projection.
type ThoughtWithAuthor struct {
	models.Thought
	AuthorName    string `json:"authorName"`
	AuthorConsent bool   `json:"-"`
}

// SessionSummary is one row of a teacher's session history.
type SessionSummary struct {
	SessionID   string    `json:"sessionId"`
	JoinCode    string    `json:"joinCode"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	PromptCount int       `json:"promptCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActiveSessionInfo is one row of the admin projection's session list.
type ActiveSessionInfo struct {
	SessionID   string    `json:"sessionId"`
	CourseID    string    `json:"courseId"`
	Title       string    `json:"title"`
	JoinCode    string    `json:"joinCode"`
	TeacherID   string    `json:"teacherId"`
	PromptCount int       `json:"promptCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is the narrow transactional interface the session server needs. The
// gorm implementation backs deployments; the memory implementation backs
// tests and single-process development runs.
type Store interface {
	UpsertUser(ctx context.Context, p UpsertUserParams) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	RecordConsent(ctx context.Context, userID string, given bool, at time.Time) (*models.User, error)

	// CreateCourseWithSession atomically creates the course and its ACTIVE
	// session; a duplicate join code yields ErrDuplicateJoinCode so the
	// caller can regenerate and retry.
	CreateCourseWithSession(ctx context.Context, teacherID, title, joinCode string, maxSwapRequests int) (*models.Course, *models.Session, error)
	FindActiveSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error)
	FindSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error)
	UpdateSessionMaxSwaps(ctx context.Context, sessionID string, maxSwapRequests int) error
	CompleteSession(ctx context.Context, sessionID string) error
	CompleteActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]models.Session, error)
	ListSessionsByTeacher(ctx context.Context, teacherID string) ([]SessionSummary, error)

	AppendPromptUse(ctx context.Context, sessionID, content, promptType string, options []string) (*models.PromptUse, error)
	LatestPromptUse(ctx context.Context, sessionID string) (*models.PromptUse, error)

	// InsertThought rejects a second live thought by the same author for the
	// same prompt use with ErrDuplicateThought.
	InsertThought(ctx context.Context, promptUseID, authorID, content string) (*models.Thought, error)
	DeleteThought(ctx context.Context, thoughtID string) (*models.Thought, *models.PromptUse, error)
	ListThoughts(ctx context.Context, promptUseID string) ([]ThoughtWithAuthor, error)

	CountSwapRequests(ctx context.Context, studentID, sessionID string) (int, error)
	RecordSwapRequest(ctx context.Context, studentID, sessionID string) error

	CreateSavedPrompt(ctx context.Context, teacherID, content, promptType string, options []string) (*models.SavedPrompt, error)
	ListSavedPrompts(ctx context.Context, teacherID string) ([]models.SavedPrompt, error)
	DeleteSavedPrompt(ctx context.Context, teacherID, promptID string) error

	AppendLogEvent(ctx context.Context, event string, userID *string, payload []byte) error

	// Admin projection reads.
	ListActiveSessions(ctx context.Context) ([]ActiveSessionInfo, error)
	ListConsentedThoughts(ctx context.Context) ([]ThoughtWithAuthor, error)
	ListConsentedSwapRequests(ctx context.Context) ([]models.SwapRequest, error)
	RecentLogEvents(ctx context.Context, limit int) ([]models.LogEvent, error)
	UserStats(ctx context.Context) (total int64, consented int64, err error)
}
