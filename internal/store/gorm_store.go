package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

// Gorm is the postgres-backed store.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *Gorm) UpsertUser(ctx context.Context, p UpsertUserParams) (*models.User, error) {
	var user models.User
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("email = ?", p.Email)
		if p.ExternalID != nil {
			q = tx.Where("external_id = ?", *p.ExternalID).Or("email = ?", p.Email)
		}
		err := q.First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				ExternalID: p.ExternalID,
				Email:      p.Email,
				Name:       p.Name,
				Role:       p.Role,
				Password:   p.Password,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"name": p.Name, "role": p.Role}
		if p.Password != "" {
			updates["password"] = p.Password
		}
		if p.ExternalID != nil {
			updates["external_id"] = *p.ExternalID
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&user, "id = ?", user.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *Gorm) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := g.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (g *Gorm) RecordConsent(ctx context.Context, userID string, given bool, at time.Time) (*models.User, error) {
	var user models.User
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return notFound(err)
		}
		updates := map[string]interface{}{"consent_given": given, "consent_date": at}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&user, "id = ?", userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *Gorm) CreateCourseWithSession(ctx context.Context, teacherID, title, joinCode string, maxSwapRequests int) (*models.Course, *models.Session, error) {
	course := models.Course{TeacherID: teacherID, Title: title, JoinCode: joinCode}
	session := models.Session{Status: models.SessionActive, MaxSwapRequests: maxSwapRequests}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&course).Error; err != nil {
			return err
		}
		session.CourseID = course.ID
		return tx.Create(&session).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrDuplicateJoinCode
		}
		return nil, nil, err
	}
	return &course, &session, nil
}

func (g *Gorm) findSessionByJoinCode(ctx context.Context, joinCode string, activeOnly bool) (*models.Session, *models.Course, error) {
	var course models.Course
	if err := g.db.WithContext(ctx).Where("join_code = ?", joinCode).First(&course).Error; err != nil {
		return nil, nil, notFound(err)
	}
	var session models.Session
	q := g.db.WithContext(ctx).Where("course_id = ?", course.ID)
	if activeOnly {
		q = q.Where("status = ?", models.SessionActive)
	}
	if err := q.Order("created_at DESC").First(&session).Error; err != nil {
		return nil, nil, notFound(err)
	}
	return &session, &course, nil
}

func (g *Gorm) FindActiveSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error) {
	return g.findSessionByJoinCode(ctx, joinCode, true)
}

func (g *Gorm) FindSessionByJoinCode(ctx context.Context, joinCode string) (*models.Session, *models.Course, error) {
	return g.findSessionByJoinCode(ctx, joinCode, false)
}

func (g *Gorm) UpdateSessionMaxSwaps(ctx context.Context, sessionID string, maxSwapRequests int) error {
	res := g.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("max_swap_requests", maxSwapRequests)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) CompleteSession(ctx context.Context, sessionID string) error {
	res := g.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("status", models.SessionCompleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) CompleteActiveSessionsByTeacher(ctx context.Context, teacherID string) ([]models.Session, error) {
	var sessions []models.Session
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Joins("JOIN courses ON courses.id = sessions.course_id").
			Where("courses.teacher_id = ? AND sessions.status = ?", teacherID, models.SessionActive).
			Find(&sessions).Error
		if err != nil {
			return err
		}
		for i := range sessions {
			if err := tx.Model(&sessions[i]).Update("status", models.SessionCompleted).Error; err != nil {
				return err
			}
			sessions[i].Status = models.SessionCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (g *Gorm) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]SessionSummary, error) {
	var rows []SessionSummary
	err := g.db.WithContext(ctx).Model(&models.Session{}).
		Select("sessions.id AS session_id, courses.join_code, courses.title, sessions.status, sessions.created_at, COUNT(prompt_uses.id) AS prompt_count").
		Joins("JOIN courses ON courses.id = sessions.course_id").
		Joins("LEFT JOIN prompt_uses ON prompt_uses.session_id = sessions.id").
		Where("courses.teacher_id = ?", teacherID).
		Group("sessions.id, courses.join_code, courses.title, sessions.status, sessions.created_at").
		Order("sessions.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) AppendPromptUse(ctx context.Context, sessionID, content, promptType string, options []string) (*models.PromptUse, error) {
	pu := models.PromptUse{
		SessionID: sessionID,
		Content:   content,
		Type:      promptType,
		Options:   options,
	}
	if err := g.db.WithContext(ctx).Create(&pu).Error; err != nil {
		return nil, err
	}
	return &pu, nil
}

func (g *Gorm) LatestPromptUse(ctx context.Context, sessionID string) (*models.PromptUse, error) {
	var pu models.PromptUse
	err := g.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("created_at DESC").First(&pu).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pu, nil
}

func (g *Gorm) InsertThought(ctx context.Context, promptUseID, authorID, content string) (*models.Thought, error) {
	thought := models.Thought{PromptUseID: promptUseID, AuthorID: authorID, Content: content}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Thought{}).
			Where("prompt_use_id = ? AND author_id = ?", promptUseID, authorID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateThought
		}
		return tx.Create(&thought).Error
	})
	if err != nil {
		return nil, err
	}
	return &thought, nil
}

func (g *Gorm) DeleteThought(ctx context.Context, thoughtID string) (*models.Thought, *models.PromptUse, error) {
	var thought models.Thought
	var pu models.PromptUse
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&thought, "id = ?", thoughtID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.First(&pu, "id = ?", thought.PromptUseID).Error; err != nil {
			return notFound(err)
		}
		return tx.Delete(&models.Thought{}, "id = ?", thoughtID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &thought, &pu, nil
}

func (g *Gorm) ListThoughts(ctx context.Context, promptUseID string) ([]ThoughtWithAuthor, error) {
	var rows []ThoughtWithAuthor
	err := g.db.WithContext(ctx).Model(&models.Thought{}).
		Select("thoughts.*, users.name AS author_name, users.consent_given AS author_consent").
		Joins("JOIN users ON users.id = thoughts.author_id").
		Where("thoughts.prompt_use_id = ?", promptUseID).
		Order("thoughts.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) CountSwapRequests(ctx context.Context, studentID, sessionID string) (int, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.SwapRequest{}).
		Where("student_id = ? AND session_id = ?", studentID, sessionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (g *Gorm) RecordSwapRequest(ctx context.Context, studentID, sessionID string) error {
	rec := models.SwapRequest{StudentID: studentID, SessionID: sessionID}
	return g.db.WithContext(ctx).Create(&rec).Error
}

func (g *Gorm) CreateSavedPrompt(ctx context.Context, teacherID, content, promptType string, options []string) (*models.SavedPrompt, error) {
	sp := models.SavedPrompt{
		TeacherID: teacherID,
		Content:   content,
		Type:      promptType,
		Options:   options,
	}
	if err := g.db.WithContext(ctx).Create(&sp).Error; err != nil {
		return nil, err
	}
	return &sp, nil
}

func (g *Gorm) ListSavedPrompts(ctx context.Context, teacherID string) ([]models.SavedPrompt, error) {
	var prompts []models.SavedPrompt
	err := g.db.WithContext(ctx).Where("teacher_id = ?", teacherID).
		Order("created_at DESC").Find(&prompts).Error
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

func (g *Gorm) DeleteSavedPrompt(ctx context.Context, teacherID, promptID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sp models.SavedPrompt
		if err := tx.First(&sp, "id = ?", promptID).Error; err != nil {
			return notFound(err)
		}
		if sp.TeacherID != teacherID {
			return ErrForbidden
		}
		return tx.Delete(&models.SavedPrompt{}, "id = ?", promptID).Error
	})
}

func (g *Gorm) AppendLogEvent(ctx context.Context, event string, userID *string, payload []byte) error {
	rec := models.LogEvent{Event: event, UserID: userID, Payload: payload}
	return g.db.WithContext(ctx).Create(&rec).Error
}

func (g *Gorm) ListActiveSessions(ctx context.Context) ([]ActiveSessionInfo, error) {
	var rows []ActiveSessionInfo
	err := g.db.WithContext(ctx).Model(&models.Session{}).
		Select("sessions.id AS session_id, courses.id AS course_id, courses.title, courses.join_code, courses.teacher_id, sessions.created_at, COUNT(prompt_uses.id) AS prompt_count").
		Joins("JOIN courses ON courses.id = sessions.course_id").
		Joins("LEFT JOIN prompt_uses ON prompt_uses.session_id = sessions.id").
		Where("sessions.status = ?", models.SessionActive).
		Group("sessions.id, courses.id, courses.title, courses.join_code, courses.teacher_id, sessions.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) ListConsentedThoughts(ctx context.Context) ([]ThoughtWithAuthor, error) {
	var rows []ThoughtWithAuthor
	err := g.db.WithContext(ctx).Model(&models.Thought{}).
		Select("thoughts.*, users.name AS author_name, users.consent_given AS author_consent").
		Joins("JOIN users ON users.id = thoughts.author_id").
		Where("users.consent_given = ?", true).
		Order("thoughts.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) ListConsentedSwapRequests(ctx context.Context) ([]models.SwapRequest, error) {
	var rows []models.SwapRequest
	err := g.db.WithContext(ctx).Model(&models.SwapRequest{}).
		Joins("JOIN users ON users.id = swap_requests.student_id").
		Where("users.consent_given = ?", true).
		Order("swap_requests.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) RecentLogEvents(ctx context.Context, limit int) ([]models.LogEvent, error) {
	var rows []models.LogEvent
	err := g.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gorm) UserStats(ctx context.Context) (int64, int64, error) {
	var total, consented int64
	if err := g.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err := g.db.WithContext(ctx).Model(&models.User{}).
		Where("consent_given = ?", true).Count(&consented).Error
	if err != nil {
		return 0, 0, err
	}
	return total, consented, nil
}
