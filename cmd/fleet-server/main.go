package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/db"
	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/common/middleware"
	"github.com/FleetLink/FleetLink/internal/common/server"
	"github.com/FleetLink/FleetLink/internal/common/tracing"
	"github.com/FleetLink/FleetLink/internal/fleet"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/FleetLink/FleetLink/internal/user"
	"github.com/gorilla/mux"
)

var (
	configPath  = flag.String("config", "configs/fleet-server.json", "配置文件路径")
	consulKVKey = flag.String("config-consul-key", "", "从 Consul KV 加载配置的 key（设置后优先于本地文件）")
	consulAddr  = flag.String("config-consul-host", "localhost", "Consul 地址（仅配合 -config-consul-key 使用）")
	consulPort  = flag.Int("config-consul-port", 8500, "Consul 端口（仅配合 -config-consul-key 使用）")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件
	var cfg *config.Config
	var err error
	if *consulKVKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
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
		log.Fatalf("failed to init database: %v", err)
	}
	if err := gdb.AutoMigrate(
		&user.User{},
		&fleet.Vehicle{},
		&fleet.Assignment{},
		&fleet.MaintenanceRecord{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 角色策略表：配置为空时退回内置默认策略
	table, err := rbac.FromConfig(cfg.RBAC)
	if err != nil {
		log.Fatalf("invalid rbac config: %v", err)
	}

	// 组装各层
	userRepo := user.NewRepo(gdb)
	fleetRepo := fleet.NewRepo(gdb)
	authz := rbac.NewAuthorizer(table, fleetRepo)
	resolver := rbac.NewResolver(cfg.Auth, userRepo, log)
	gate := rbac.NewGate(cfg.Auth, table, resolver, log)

	userSvc := user.NewService(userRepo, authz, cfg.Auth)
	fleetSvc := fleet.NewService(fleetRepo, userRepo, authz, log)

	userHandler := user.NewHandler(userSvc, cfg.Auth, log)
	fleetHandler := fleet.NewHandler(fleetSvc)

	// 启动统一的 HTTP 服务模板
	err = server.RunHTTPServer(cfg, log, func(r *mux.Router) error {
		// 闸门在业务路由之前执行（/healthz 在模板里注册，不经过闸门）
		r.Use(gate.Middleware)
		// mux 的 Use 只对命中的路由生效，未命中路径也要过闸门：
		// 未登录跳登录页、越权前缀跳落地页，最后才是 404
		r.NotFoundHandler = gate.Middleware(http.NotFoundHandler())
		userHandler.RegisterRoutes(r)
		fleetHandler.RegisterRoutes(r)
		return nil
	}, server.WithRateLimit(middleware.NewTokenBucket(200, 100)))
	if err != nil {
		log.Fatalf("fleet-server exited with error: %v", err)
	}
}
