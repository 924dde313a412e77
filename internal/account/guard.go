package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/errcode"
)

// Guard resolves caller identities to users and enforces record ownership.
type Guard struct {
	db *gorm.DB
}

func NewGuard(db *gorm.DB) *Guard {
	return &Guard{db: db}
}

// Resolve 将外部身份映射为内部用户。身份缺失与账号缺失对调用方同样返回 Unauthenticated。
func (g *Guard) Resolve(ctx context.Context, id *auth.Identity) (*database.User, error) {
	if id == nil || strings.TrimSpace(id.Subject) == "" {
		return nil, errcode.New(errcode.Unauthenticated, "unauthenticated")
	}

	var user database.User
	err := g.db.WithContext(ctx).Where("subject = ?", id.Subject).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errcode.New(errcode.Unauthenticated, "unauthenticated")
	default:
		return nil, fmt.Errorf("query user by subject: %w", err)
	}
}

// Authorize 比较记录所有者与调用者。
func (g *Guard) Authorize(user *database.User, ownerID uint) error {
	if user == nil || user.ID != ownerID {
		return errcode.New(errcode.Unauthorized, "unauthorized")
	}
	return nil
}

// OwnedResume 先解析调用者，再加载简历并校验所有权。
func (g *Guard) OwnedResume(ctx context.Context, id *auth.Identity, resumeID uint) (*database.User, *database.Resume, error) {
	user, err := g.Resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var r database.Resume
	if err := g.db.WithContext(ctx).First(&r, resumeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errcode.New(errcode.NotFound, "resume not found")
		}
		return nil, nil, fmt.Errorf("query resume %d: %w", resumeID, err)
	}

	if err := g.Authorize(user, r.UserID); err != nil {
		return nil, nil, err
	}
	return user, &r, nil
}
