package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

// Service 处理 onboarding 与账号修复。
type Service struct {
	db     *gorm.DB
	guard  *Guard
	logger *slog.Logger
}

func NewService(db *gorm.DB, guard *Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, guard: guard, logger: logger}
}

// Onboard 在一个事务内创建用户、主简历并写回引用。同一 subject 只能 onboarding 一次。
func (s *Service) Onboard(ctx context.Context, id *auth.Identity, content resume.Content) (*database.User, *database.Resume, error) {
	if id == nil || strings.TrimSpace(id.Subject) == "" {
		return nil, nil, errcode.New(errcode.Unauthenticated, "unauthenticated")
	}

	var (
		user   database.User
		master database.Resume
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.User{}).Where("subject = ?", id.Subject).Count(&count).Error; err != nil {
			return fmt.Errorf("count users by subject: %w", err)
		}
		if count > 0 {
			return errcode.New(errcode.UserAlreadyExists, "user already exists")
		}

		user = database.User{Subject: id.Subject, Email: id.Email}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errcode.New(errcode.UserAlreadyExists, "user already exists")
			}
			return fmt.Errorf("create user: %w", err)
		}

		master = database.Resume{UserID: user.ID, Title: resume.MasterTitle}
		master.SetContent(content.Normalize())
		if err := tx.Create(&master).Error; err != nil {
			return fmt.Errorf("create master resume: %w", err)
		}

		if err := tx.Model(&user).Update("master_resume_id", master.ID).Error; err != nil {
			return fmt.Errorf("link master resume: %w", err)
		}
		user.MasterResumeID = &master.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user onboarded",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.Uint64("master_resume_id", uint64(master.ID)),
	)
	return &user, &master, nil
}

// Me 返回当前调用者对应的用户。
func (s *Service) Me(ctx context.Context, id *auth.Identity) (*database.User, error) {
	return s.guard.Resolve(ctx, id)
}

// RepairMissingMasters 修复缺少主简历引用的用户：优先关联最早的一份简历，否则新建空白主简历。
// 返回修复的用户数。
func (s *Service) RepairMissingMasters(ctx context.Context) (int, error) {
	var users []database.User
	if err := s.db.WithContext(ctx).Where("master_resume_id IS NULL").Find(&users).Error; err != nil {
		return 0, fmt.Errorf("query users without master: %w", err)
	}

	repaired := 0
	for i := range users {
		u := users[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var oldest database.Resume
			err := tx.Where("user_id = ?", u.ID).Order("created_at ASC").First(&oldest).Error
			switch {
			case err == nil:
			case errors.Is(err, gorm.ErrRecordNotFound):
				oldest = database.Resume{UserID: u.ID, Title: resume.MasterTitle}
				oldest.SetContent(resume.Content{PersonalInfo: resume.PersonalInfo{Email: u.Email}})
				if err := tx.Create(&oldest).Error; err != nil {
					return fmt.Errorf("create master resume: %w", err)
				}
			default:
				return fmt.Errorf("query oldest resume: %w", err)
			}
			return tx.Model(&database.User{}).
				Where("id = ? AND master_resume_id IS NULL", u.ID).
				Update("master_resume_id", oldest.ID).Error
		})
		if err != nil {
			s.logger.Error("repair master resume failed", slog.Uint64("user_id", uint64(u.ID)), slog.Any("error", err))
			continue
		}
		repaired++
		s.logger.Info("repaired master resume", slog.Uint64("user_id", uint64(u.ID)))
	}
	return repaired, nil
}
