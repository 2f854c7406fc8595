package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/discovery"
	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/common/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HTTPRegisterFunc 用于注册业务路由（handler.RegisterRoutes 等）。
type HTTPRegisterFunc func(r *mux.Router) error

type RunHTTPOptions struct {
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	// RateLimit 为 nil 时不启用限流
	RateLimit middleware.RateLimiter
}

func defaultRunHTTPOptions() RunHTTPOptions {
	return RunHTTPOptions{
		ShutdownTimeout: 5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// RunHTTPServer 统一的 HTTP 服务启动模板：
// - 初始化 listener + mux router（含中间件链）
// - 注册 /healthz（供 Consul 的 HTTP check 探测）
// - 注册业务路由
// - 注册到 Consul
// - 优雅退出
func RunHTTPServer(cfg *config.Config, log logger.Logger, register HTTPRegisterFunc, opts ...func(*RunHTTPOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunHTTPOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// 初始化 Consul 客户端（失败不阻塞服务启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if register != nil {
		if err := register(router); err != nil {
			return fmt.Errorf("failed to register http routes: %w", err)
		}
	}

	// 构建统一的中间件链（按顺序执行）
	handler := Chain(router,
		RecoveryMiddleware(log),            // 异常恢复，避免服务崩溃
		TracingMiddleware(cfg.Server.Name), // 链路追踪
		AccessLogMiddleware(log),           // 访问日志
		RateLimitMiddleware(o.RateLimit),   // 限流（可选）
	)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}

	// 注册到 Consul（成功才 defer 注销）
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.HTTPPort,
			[]string{"http"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	log.Infof("%s starting on %s:%d", cfg.Server.Name, cfg.Server.Host, cfg.Server.HTTPPort)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http serve failed: %w", err)
		}
		return nil
	}

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown timeout, forcing close: %v", err)
		_ = srv.Close()
	} else {
		log.Info("http server stopped gracefully")
	}

	return nil
}

// WithShutdownTimeout 修改优雅退出等待时间。
func WithShutdownTimeout(d time.Duration) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithRateLimit 启用全局限流。
func WithRateLimit(rl middleware.RateLimiter) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		o.RateLimit = rl
	}
}
