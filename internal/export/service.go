package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

// Renderer 把 HTML 转为 PDF。
type Renderer interface {
	FromHTML(ctx context.Context, html string) ([]byte, error)
}

// Archive 是导出结果的对象存储。
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignDownload(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Document 是一次导出的结果。
type Document struct {
	Filename string
	Data     []byte
}

type Service struct {
	db       *gorm.DB
	guard    *account.Guard
	renderer Renderer
	archive  Archive
	linkTTL  time.Duration
	logger   *slog.Logger
}

// NewService 构造导出服务。archive 为 nil 时不归档，Link 返回 NotFound。
func NewService(db *gorm.DB, guard *account.Guard, renderer Renderer, archive Archive, linkTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &Service{db: db, guard: guard, renderer: renderer, archive: archive, linkTTL: linkTTL, logger: logger}
}

// Export 渲染调用者的一份简历。归档失败只记录日志，不影响返回。
func (s *Service) Export(ctx context.Context, id *auth.Identity, resumeID uint) (*Document, error) {
	user, r, err := s.guard.OwnedResume(ctx, id, resumeID)
	if err != nil {
		return nil, err
	}

	html, err := Render(resume.Snapshot{Title: r.Title, Content: r.Content()})
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "render resume", err)
	}
	data, err := s.renderer.FromHTML(ctx, html)
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "generate pdf", err)
	}

	doc := &Document{Filename: Filename(r.Title, r.ID), Data: data}
	if err := s.store(ctx, user.ID, r.ID, doc); err != nil {
		s.logger.Warn("archive export failed",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.Uint64("resume_id", uint64(r.ID)),
			slog.Any("error", err),
		)
	}
	return doc, nil
}

func (s *Service) store(ctx context.Context, userID, resumeID uint, doc *Document) error {
	if s.archive == nil {
		return nil
	}
	key := fmt.Sprintf("%s%s.pdf", prefix(userID, resumeID), uuid.NewString())
	if err := s.archive.Put(ctx, key, doc.Data, "application/pdf"); err != nil {
		return err
	}
	rec := database.ExportArchive{ResumeID: resumeID, UserID: userID, ObjectKey: key, Filename: doc.Filename}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record export archive: %w", err)
	}
	return nil
}

// Link 返回最近一次归档的限时下载链接。
func (s *Service) Link(ctx context.Context, id *auth.Identity, resumeID uint) (string, error) {
	if _, _, err := s.guard.OwnedResume(ctx, id, resumeID); err != nil {
		return "", err
	}
	if s.archive == nil {
		return "", errcode.New(errcode.NotFound, "no archived export")
	}

	var rec database.ExportArchive
	err := s.db.WithContext(ctx).Where("resume_id = ?", resumeID).Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errcode.New(errcode.NotFound, "no archived export")
	}
	if err != nil {
		return "", fmt.Errorf("query export archive: %w", err)
	}

	url, err := s.archive.PresignDownload(ctx, rec.ObjectKey, rec.Filename, s.linkTTL)
	if err != nil {
		return "", errcode.Wrap(errcode.Misc, "presign export", err)
	}
	return url, nil
}

// Purge 删除一份简历的全部归档，用于简历删除之后。
// 对象存储按前缀整体清理，没有归档记录时也会执行，以回收上传后未登记的对象。
func (s *Service) Purge(ctx context.Context, resumeID uint) error {
	var owner database.Resume
	err := s.db.WithContext(ctx).Unscoped().Select("id", "user_id").First(&owner, resumeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query resume owner: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.DeletePrefix(ctx, prefix(owner.UserID, resumeID)); err != nil {
			return err
		}
	}
	if err := s.db.WithContext(ctx).Where("resume_id = ?", resumeID).Delete(&database.ExportArchive{}).Error; err != nil {
		return fmt.Errorf("delete export archive records: %w", err)
	}
	return nil
}

func prefix(userID, resumeID uint) string {
	return fmt.Sprintf("exports/%d/%d/", userID, resumeID)
}
