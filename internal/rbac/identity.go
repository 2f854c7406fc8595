package rbac

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/auth"
	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/common/middleware"
)

// Actor 一次请求的已认证主体。
// 由 Resolver 解析一次后显式传参到下游，下游不再触碰原始会话数据。
type Actor struct {
	ID     string
	Role   Role
	Status AccountStatus
	Email  string
	Name   string
}

// IsActive 账号是否可用
func (a Actor) IsActive() bool {
	return a.Status == StatusActive
}

// ActorStore 身份存储的边界接口：按 id 读取当前的角色/状态。
// 每个请求都重新读取，保证封禁/降级立即生效（不做任何缓存）。
type ActorStore interface {
	FindActor(ctx context.Context, id string) (Actor, error)
}

// Resolver 身份解析器：会话凭证 -> Actor。
type Resolver struct {
	cfg     config.AuthConfig
	store   ActorStore
	breaker *middleware.CircuitBreaker
	log     logger.Logger
}

// NewResolver 创建身份解析器。
// 存储查询包在熔断器里：存储持续失败时快速 fail closed，而不是拖死每个请求。
func NewResolver(cfg config.AuthConfig, store ActorStore, log logger.Logger) *Resolver {
	return &Resolver{
		cfg:     cfg,
		store:   store,
		breaker: middleware.NewCircuitBreaker("actor-store", 5, 30*time.Second),
		log:     log,
	}
}

// Resolve 从请求中解析已认证主体。
// 解析失败（无凭证 / 凭证无效 / 角色不可识别 / 用户不存在）统一返回
// apperrors.ErrUnauthenticated，不区分原因暴露给调用方。
func (r *Resolver) Resolve(req *http.Request) (Actor, error) {
	tokenStr := r.credential(req)
	if tokenStr == "" {
		return Actor{}, apperrors.ErrUnauthenticated
	}

	claims, err := auth.ParseSessionToken(r.cfg, tokenStr)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}
	if _, err := ParseRole(claims.Role); err != nil {
		// 令牌里带了枚举之外的角色：视为未认证
		return Actor{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}

	// 以数据库行为准重新读取角色/状态（令牌中的快照可能已过期）。
	var actor Actor
	callErr := r.breaker.Call(req.Context(), func() error {
		var findErr error
		actor, findErr = r.store.FindActor(req.Context(), claims.Subject)
		return findErr
	})
	if callErr != nil {
		if r.log != nil {
			r.log.WithField("user_id", claims.Subject).Warnf("resolve identity: %v", callErr)
		}
		return Actor{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, callErr)
	}

	if _, err := ParseRole(string(actor.Role)); err != nil {
		return Actor{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}
	return actor, nil
}

// credential 取会话凭证：优先 cookie，其次 Authorization: Bearer。
func (r *Resolver) credential(req *http.Request) string {
	if r.cfg.SessionCookie != "" {
		if c, err := req.Cookie(r.cfg.SessionCookie); err == nil && c.Value != "" {
			return c.Value
		}
	}

	raw := strings.TrimSpace(req.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[len("bearer "):])
	}
	return ""
}
