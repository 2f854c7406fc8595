package user

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/auth"
	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service 身份域用例：注册、登录、口令管理、账号管理。
// 所有带权限语义的操作都显式接收 Actor，重新过服务层鉴权。
type Service struct {
	repo  *Repo
	authz *rbac.Authorizer
	cfg   config.AuthConfig
}

func NewService(repo *Repo, authz *rbac.Authorizer, cfg config.AuthConfig) *Service {
	return &Service{repo: repo, authz: authz, cfg: cfg}
}

// RegisterInput 注册入参
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Phone           string
	Role            string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email format", apperrors.ErrInvalidInput)
	}
	if in.Password != in.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", apperrors.ErrInvalidInput)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	// 自助注册只产生 driver 账号（/auth/register 是公开路由）。
	// 管理角色走 fleet-admin 引导 + SetRole 授予，不能在注册时自封。
	if role != rbac.RoleDriver {
		return nil, fmt.Errorf("%w: self-registration is limited to driver accounts", apperrors.ErrPermissionDenied)
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, salt)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         string(role),
		Status:       string(rbac.StatusActive),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate 用邮箱+口令换取用户。
// 凭证错误统一返回 invalid credentials，不区分“用户不存在”和“口令错误”。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthenticated)
	}
	if !VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthenticated)
	}
	if u.Status != string(rbac.StatusActive) {
		return nil, fmt.Errorf("%w: account is %s", apperrors.ErrAccountInactive, u.Status)
	}

	now := time.Now()
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err == nil {
		u.LastLoginAt = &now
	}
	return u, nil
}

// IssueSession 为用户签发会话令牌。
func (s *Service) IssueSession(u *User) (token string, expiresAt time.Time, err error) {
	ttl := time.Duration(s.cfg.TokenTTLHours) * time.Hour
	return auth.GenerateSessionToken(s.cfg, u.ID, u.Role, ttl)
}

// ChangePassword 用户修改自己的口令（要求先验证当前口令）。
func (s *Service) ChangePassword(ctx context.Context, actor rbac.Actor, current, newPassword, confirm string) error {
	u, err := s.repo.FindByID(ctx, actor.ID)
	if err != nil {
		return err
	}
	if !VerifyPassword(current, u.PasswordSalt, u.PasswordHash) {
		return fmt.Errorf("%w: current password is incorrect", apperrors.ErrPermissionDenied)
	}
	if newPassword != confirm {
		return fmt.Errorf("%w: new passwords do not match", apperrors.ErrInvalidInput)
	}
	if err := ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return s.storePassword(ctx, u.ID, newPassword)
}

// ResetPassword 管理员重置他人口令。
func (s *Service) ResetPassword(ctx context.Context, actor rbac.Actor, userID, newPassword string) error {
	if err := s.authz.CheckPermission(actor, rbac.ActionUserManage); err != nil {
		return err
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return s.storePassword(ctx, userID, newPassword)
}

func (s *Service) storePassword(ctx context.Context, userID, password string) error {
	salt, err := GenerateSaltHex()
	if err != nil {
		return err
	}
	hash, err := HashPassword(password, salt)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, hash, salt)
}

// SetStatus 管理员修改账号状态（停用用这个，不做物理删除）。
func (s *Service) SetStatus(ctx context.Context, actor rbac.Actor, userID, status string) error {
	if err := s.authz.CheckPermission(actor, rbac.ActionUserManage); err != nil {
		return err
	}
	st := rbac.AccountStatus(strings.TrimSpace(strings.ToLower(status)))
	switch st {
	case rbac.StatusActive, rbac.StatusInactive, rbac.StatusSuspended:
	default:
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, status)
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, userID, st)
}

// SetRole 管理员调整他人角色；可授予的角色集取决于操作者自身角色。
func (s *Service) SetRole(ctx context.Context, actor rbac.Actor, userID, roleStr string) error {
	if err := s.authz.CheckPermission(actor, rbac.ActionUserManage); err != nil {
		return err
	}
	role, err := rbac.ParseRole(roleStr)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if !roleIn(role, GrantableRoles(actor.Role)) {
		return fmt.Errorf("%w: role %s cannot grant %s", apperrors.ErrPermissionDenied, actor.Role, role)
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.UpdateRole(ctx, userID, role)
}

// ListUsers 管理员列出用户。
func (s *Service) ListUsers(ctx context.Context, actor rbac.Actor, offset, limit int) ([]User, int64, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionUserManage); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, offset, limit)
}

// GrantableRoles 操作者可以授予的角色集：
// super_admin -> driver/manager/admin；admin -> driver/manager；其余为空。
func GrantableRoles(actor rbac.Role) []rbac.Role {
	switch actor {
	case rbac.RoleSuperAdmin:
		return []rbac.Role{rbac.RoleDriver, rbac.RoleManager, rbac.RoleAdmin}
	case rbac.RoleAdmin:
		return []rbac.Role{rbac.RoleDriver, rbac.RoleManager}
	default:
		return nil
	}
}

func roleIn(role rbac.Role, set []rbac.Role) bool {
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}
