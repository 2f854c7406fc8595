package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/db"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/FleetLink/FleetLink/internal/user"
	"github.com/google/uuid"
)

// fleet-admin 运维工具：在空库上引导第一个超级管理员账号。
// 后续的用户/角色管理走 fleet-server 的 HTTP 接口。
var (
	configPath = flag.String("config", "configs/fleet-server.json", "配置文件路径")
	email      = flag.String("email", "", "管理员邮箱")
	password   = flag.String("password", "", "管理员初始密码")
	name       = flag.String("name", "Super Admin", "管理员显示名")
)

func main() {
	flag.Parse()

	if strings.TrimSpace(*email) == "" || strings.TrimSpace(*password) == "" {
		fmt.Fprintln(os.Stderr, "usage: fleet-admin -email <email> -password <password> [-name <name>]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	gdb, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		fatalf("failed to init database: %v", err)
	}
	if err := gdb.AutoMigrate(&user.User{}); err != nil {
		fatalf("failed to migrate database: %v", err)
	}

	if err := user.ValidatePassword(*password); err != nil {
		fatalf("weak password: %v", err)
	}
	salt, err := user.GenerateSaltHex()
	if err != nil {
		fatalf("generate salt: %v", err)
	}
	hash, err := user.HashPassword(*password, salt)
	if err != nil {
		fatalf("hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		Name:         strings.TrimSpace(*name),
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         string(rbac.RoleSuperAdmin),
		Status:       string(rbac.StatusActive),
	}
	if err := user.NewRepo(gdb).Create(ctx, u); err != nil {
		fatalf("create admin: %v", err)
	}

	fmt.Printf("super admin created: id=%s email=%s\n", u.ID, u.Email)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
