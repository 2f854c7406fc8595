package user

import (
	"time"

	"github.com/FleetLink/FleetLink/internal/rbac"
)

// User 是 users 表的 GORM 模型。
// 身份域拥有这张表；车队域只通过 id 弱引用，不做级联。
// 用户从不物理删除：停用走 status -> inactive。
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:128;not null"` // 存储时统一小写
	PasswordHash string `gorm:"size:128;not null"`
	PasswordSalt string `gorm:"size:64;not null"`
	Name         string `gorm:"size:64"`
	Phone        string `gorm:"size:32"`
	Role         string `gorm:"size:16;not null;default:'driver'"` // driver / manager / admin / super_admin
	Status       string `gorm:"size:16;not null;default:'active'"` // active / inactive / suspended
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Actor 转成鉴权域的主体值。角色非法时返回 error（fail closed）。
func (u *User) Actor() (rbac.Actor, error) {
	role, err := rbac.ParseRole(u.Role)
	if err != nil {
		return rbac.Actor{}, err
	}
	return rbac.Actor{
		ID:     u.ID,
		Role:   role,
		Status: rbac.AccountStatus(u.Status),
		Email:  u.Email,
		Name:   u.Name,
	}, nil
}
