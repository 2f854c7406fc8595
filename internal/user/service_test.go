package user

import (
	"context"
	"errors"
	"testing"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestUserService(t *testing.T) (*Service, *Repo) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewRepo(gdb)
	authz := rbac.NewAuthorizer(rbac.DefaultTable(), nil)
	cfg := config.AuthConfig{
		JWTSecret:     "test-secret",
		Issuer:        "fleetlink",
		Audience:      "fleetlink",
		TokenTTLHours: 1,
	}
	return NewService(repo, authz, cfg), repo
}

func mustRegister(t *testing.T, svc *Service, email, role string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Email:           email,
		Password:        "p4ssword1",
		ConfirmPassword: "p4ssword1",
		Name:            "Test User",
		Role:            role,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return u
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	// 邮箱统一小写存储
	u := mustRegister(t, svc, " Driver@Example.COM ", "driver")
	if u.Email != "driver@example.com" {
		t.Fatalf("expected lowercased email, got %q", u.Email)
	}
	if u.Status != string(rbac.StatusActive) {
		t.Fatalf("expected active status, got %q", u.Status)
	}

	// 邮箱重复（不同大小写）是冲突
	_, err := svc.Register(ctx, RegisterInput{
		Email: "DRIVER@example.com", Password: "p4ssword1", ConfirmPassword: "p4ssword1", Role: "driver",
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "p4ssword1", ConfirmPassword: "p4ssword1", Role: "driver"}},
		{"password mismatch", RegisterInput{Email: "a@b.cn", Password: "p4ssword1", ConfirmPassword: "other1234", Role: "driver"}},
		{"weak password", RegisterInput{Email: "a@b.cn", Password: "short1", ConfirmPassword: "short1", Role: "driver"}},
		{"digits only password", RegisterInput{Email: "a@b.cn", Password: "12345678", ConfirmPassword: "12345678", Role: "driver"}},
		{"unknown role", RegisterInput{Email: "a@b.cn", Password: "p4ssword1", ConfirmPassword: "p4ssword1", Role: "root"}},
	}
	for _, c := range cases {
		if _, err := svc.Register(ctx, c.in); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", c.name, err)
		}
	}

	// 注册是公开路由，只允许自助创建 driver；管理角色必须由授权流程授予
	for _, role := range []string{"manager", "admin", "super_admin"} {
		_, err := svc.Register(ctx, RegisterInput{
			Email: "elevated@b.cn", Password: "p4ssword1", ConfirmPassword: "p4ssword1", Role: role,
		})
		if !errors.Is(err, apperrors.ErrPermissionDenied) {
			t.Fatalf("role %s: expected permission denied on self-registration, got %v", role, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	svc, repo := newTestUserService(t)
	ctx := context.Background()
	mustRegister(t, svc, "driver@example.com", "driver")

	u, err := svc.Authenticate(ctx, "Driver@Example.com", "p4ssword1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.LastLoginAt == nil {
		t.Fatalf("expected last_login_at to be touched")
	}

	// 用户不存在和口令错误返回同一类错误
	if _, err := svc.Authenticate(ctx, "ghost@example.com", "p4ssword1"); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown email, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "driver@example.com", "wrong-pass1"); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for wrong password, got %v", err)
	}

	// 停用账号：凭证正确也拒绝，并且错误类别可区分
	if err := repo.UpdateStatus(ctx, u.ID, rbac.StatusSuspended); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "driver@example.com", "p4ssword1"); !errors.Is(err, apperrors.ErrAccountInactive) {
		t.Fatalf("expected account inactive, got %v", err)
	}
}

func TestIssueSessionRoundTrip(t *testing.T) {
	svc, _ := newTestUserService(t)
	u := mustRegister(t, svc, "driver@example.com", "driver")

	token, expiresAt, err := svc.IssueSession(u)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatalf("expected token and expiry")
	}
}

func TestChangeAndResetPassword(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "driver@example.com", "driver")
	actor := rbac.Actor{ID: u.ID, Role: rbac.RoleDriver, Status: rbac.StatusActive}

	// 当前口令错误
	if err := svc.ChangePassword(ctx, actor, "wrong-pass1", "n3wpassword", "n3wpassword"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, actor, "p4ssword1", "n3wpassword", "n3wpassword"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "driver@example.com", "n3wpassword"); err != nil {
		t.Fatalf("Authenticate with new password: %v", err)
	}

	// driver 不能重置他人口令；admin 可以
	driver2 := mustRegister(t, svc, "other@example.com", "driver")
	if err := svc.ResetPassword(ctx, actor, driver2.ID, "r3setpass1"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for driver reset, got %v", err)
	}
	admin := rbac.Actor{ID: "u-admin", Role: rbac.RoleAdmin, Status: rbac.StatusActive}
	if err := svc.ResetPassword(ctx, admin, driver2.ID, "r3setpass1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "other@example.com", "r3setpass1"); err != nil {
		t.Fatalf("Authenticate after reset: %v", err)
	}
}

func TestSetRoleGrantRules(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()
	target := mustRegister(t, svc, "driver@example.com", "driver")

	admin := rbac.Actor{ID: "u-admin", Role: rbac.RoleAdmin, Status: rbac.StatusActive}
	super := rbac.Actor{ID: "u-super", Role: rbac.RoleSuperAdmin, Status: rbac.StatusActive}
	manager := rbac.Actor{ID: "u-mgr", Role: rbac.RoleManager, Status: rbac.StatusActive}

	// manager 连用户管理动作都没有
	if err := svc.SetRole(ctx, manager, target.ID, "manager"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for manager, got %v", err)
	}
	// admin 可以授 manager，但授不了 admin
	if err := svc.SetRole(ctx, admin, target.ID, "manager"); err != nil {
		t.Fatalf("SetRole(admin grants manager): %v", err)
	}
	if err := svc.SetRole(ctx, admin, target.ID, "admin"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for admin granting admin, got %v", err)
	}
	// 任何人都授不了 super_admin
	if err := svc.SetRole(ctx, super, target.ID, "super_admin"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied granting super_admin, got %v", err)
	}
	// super_admin 可以授 admin
	if err := svc.SetRole(ctx, super, target.ID, "admin"); err != nil {
		t.Fatalf("SetRole(super grants admin): %v", err)
	}
	// 未知角色
	if err := svc.SetRole(ctx, super, target.ID, "root"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown role, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	svc, repo := newTestUserService(t)
	ctx := context.Background()
	target := mustRegister(t, svc, "driver@example.com", "driver")
	admin := rbac.Actor{ID: "u-admin", Role: rbac.RoleAdmin, Status: rbac.StatusActive}

	if err := svc.SetStatus(ctx, admin, target.ID, "Suspended"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	row, err := repo.FindByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if row.Status != string(rbac.StatusSuspended) {
		t.Fatalf("expected suspended, got %q", row.Status)
	}

	if err := svc.SetStatus(ctx, admin, target.ID, "banned"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if err := svc.SetStatus(ctx, admin, "u-ghost", "active"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestFindActor(t *testing.T) {
	svc, repo := newTestUserService(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "driver@example.com", "driver")

	actor, err := repo.FindActor(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindActor: %v", err)
	}
	if actor.ID != u.ID || actor.Role != rbac.RoleDriver || actor.Status != rbac.StatusActive {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	if _, err := repo.FindActor(ctx, "u-ghost"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
