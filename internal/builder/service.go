// Package builder 负责简历的读写：主简历、派生简历的 fork、部分更新与删除。
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

// Service 在 Guard 的所有权校验之上提供简历操作。
type Service struct {
	db     *gorm.DB
	guard  *account.Guard
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, guard *account.Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, guard: guard, logger: logger, now: time.Now}
}

// GetMaster 返回调用者的主简历。
func (s *Service) GetMaster(ctx context.Context, id *auth.Identity) (*database.Resume, error) {
	user, err := s.guard.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.master(ctx, s.db, user)
}

func (s *Service) master(ctx context.Context, db *gorm.DB, user *database.User) (*database.Resume, error) {
	if user.MasterResumeID == nil {
		return nil, errcode.New(errcode.NotFound, "master resume not found")
	}
	var r database.Resume
	if err := db.WithContext(ctx).First(&r, *user.MasterResumeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.New(errcode.NotFound, "master resume not found")
		}
		return nil, fmt.Errorf("query master resume: %w", err)
	}
	return &r, nil
}

// Get 返回指定简历，需为调用者所有。
func (s *Service) Get(ctx context.Context, id *auth.Identity, resumeID uint) (*database.Resume, error) {
	_, r, err := s.guard.OwnedResume(ctx, id, resumeID)
	return r, err
}

// IsMaster reports whether resumeID is the master resume of the caller.
func (s *Service) IsMaster(ctx context.Context, id *auth.Identity, resumeID uint) (bool, error) {
	user, err := s.guard.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return user.MasterResumeID != nil && *user.MasterResumeID == resumeID, nil
}

// List 列出调用者的派生简历（不含主简历），按更新时间倒序。
func (s *Service) List(ctx context.Context, id *auth.Identity) ([]database.Resume, error) {
	user, err := s.guard.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("user_id = ?", user.ID)
	if user.MasterResumeID != nil {
		q = q.Where("id <> ?", *user.MasterResumeID)
	}
	var resumes []database.Resume
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&resumes).Error; err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	return resumes, nil
}

// Fork 复制主简历的全部内容生成一份新简历。title 为空时使用带时间戳的默认标题；
// 主简历标题保留给 onboarding。
func (s *Service) Fork(ctx context.Context, id *auth.Identity, title string) (*database.Resume, error) {
	user, err := s.guard.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("New Resume %d", s.now().UnixMilli())
	}
	if title == resume.MasterTitle {
		return nil, errcode.New(errcode.Invalid, "title is reserved for the master resume")
	}

	var forked database.Resume
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		master, err := s.master(ctx, tx, user)
		if err != nil {
			return err
		}
		forked = database.Resume{UserID: user.ID, Title: title}
		forked.SetContent(master.Content())
		if err := tx.Create(&forked).Error; err != nil {
			return fmt.Errorf("create forked resume: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resume forked",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.Uint64("resume_id", uint64(forked.ID)),
	)
	return &forked, nil
}

// Patch 只覆盖补丁中出现的字段，其余保持不变。
func (s *Service) Patch(ctx context.Context, id *auth.Identity, resumeID uint, patch resume.Patch) (*database.Resume, error) {
	if patch.Empty() {
		return nil, errcode.New(errcode.Invalid, "patch is empty")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, errcode.New(errcode.Invalid, "title must not be empty")
	}
	user, r, err := s.guard.OwnedResume(ctx, id, resumeID)
	if err != nil {
		return nil, err
	}
	isMaster := user.MasterResumeID != nil && *user.MasterResumeID == r.ID
	if patch.Title != nil && !isMaster && strings.TrimSpace(*patch.Title) == resume.MasterTitle {
		return nil, errcode.New(errcode.Invalid, "title is reserved for the master resume")
	}

	// 只写补丁里出现的列，避免覆盖并发写入的其它字段。
	updates := database.PatchColumns(patch)
	updates["updated_at"] = s.now()
	if err := s.db.WithContext(ctx).Model(&database.Resume{}).Where("id = ?", r.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update resume %d: %w", r.ID, err)
	}

	var fresh database.Resume
	if err := s.db.WithContext(ctx).First(&fresh, r.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.New(errcode.NotFound, "resume not found")
		}
		return nil, fmt.Errorf("reload resume %d: %w", r.ID, err)
	}
	return &fresh, nil
}
