package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/db"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := r.db.WithContext(ctx).Create(u).Error
	if err != nil && db.IsDuplicateKey(err) {
		return fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
	}
	return err
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindActor 实现 rbac.ActorStore：每次都读当前行，不做缓存，
// 保证封禁/改角色在下一个请求立即生效。
func (r *Repo) FindActor(ctx context.Context, id string) (rbac.Actor, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return rbac.Actor{}, err
	}
	return u.Actor()
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]User, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	if err := r.db.WithContext(ctx).Order("created_at desc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListActiveDrivers 可分配司机列表（role=driver 且 active），按姓名排序。
func (r *Repo) ListActiveDrivers(ctx context.Context) ([]User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var drivers []User
	err := r.db.WithContext(ctx).
		Where("role = ? AND status = ?", string(rbac.RoleDriver), string(rbac.StatusActive)).
		Order("name asc").
		Find(&drivers).Error
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// ListDriverActors 同 ListActiveDrivers，返回鉴权域的主体值（供车队域消费）。
func (r *Repo) ListDriverActors(ctx context.Context) ([]rbac.Actor, error) {
	drivers, err := r.ListActiveDrivers(ctx)
	if err != nil {
		return nil, err
	}
	actors := make([]rbac.Actor, 0, len(drivers))
	for i := range drivers {
		actor, err := drivers[i].Actor()
		if err != nil {
			continue // 角色非法的行直接跳过（fail closed）
		}
		actors = append(actors, actor)
	}
	return actors, nil
}

func (r *Repo) UpdatePassword(ctx context.Context, id, hashHex, saltHex string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash": hashHex,
			"password_salt": saltHex,
		}).Error
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, status rbac.AccountStatus) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("status", string(status)).Error
}

func (r *Repo) UpdateRole(ctx context.Context, id string, role rbac.Role) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("role", string(role)).Error
}

func (r *Repo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}
