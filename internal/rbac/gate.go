package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/FleetLink/FleetLink/internal/common/config"
	"github.com/FleetLink/FleetLink/internal/common/logger"
)

// DecisionKind 路由闸门的判定结果类型
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionRedirect
	DecisionDeny
)

// Decision 路由闸门的判定结果。
// Redirect 携带跳转目标和原因码（原因码只用于日志/跳转参数，不泄露资源是否存在）。
type Decision struct {
	Kind   DecisionKind
	Target string
	Reason string
}

func allow() Decision { return Decision{Kind: DecisionAllow} }
func redirect(target, reason string) Decision {
	return Decision{Kind: DecisionRedirect, Target: target, Reason: reason}
}

// Gate 路由级闸门：在任何业务逻辑之前对每个受保护请求做粗粒度判定。
type Gate struct {
	cfg      config.AuthConfig
	table    *PolicyTable
	resolver *Resolver
	log      logger.Logger
}

// NewGate 创建路由闸门
func NewGate(cfg config.AuthConfig, table *PolicyTable, resolver *Resolver, log logger.Logger) *Gate {
	return &Gate{cfg: cfg, table: table, resolver: resolver, log: log}
}

// Authorize 对 (path, query, 身份) 做纯函数判定，不产生任何副作用。
//
// 判定顺序：
//  1. 公开路由：已登录访问登录类路由 -> 跳转落地页；否则放行
//  2. 未认证 -> 跳转登录页
//  3. 账号状态非 active -> 跳转登录页（带原因码）
//  4. 角色路由前缀不匹配 -> 跳转落地页（fail closed，不暴露资源存在性）
//  5. driver 携带他人 user_id 参数 -> 跳转落地页（传输层就拒绝跨主体访问）
func (g *Gate) Authorize(path string, query url.Values, actor Actor, authenticated bool) Decision {
	if g.isPublic(path) {
		if authenticated && g.isLoginRoute(path) {
			return redirect(g.cfg.DefaultLanding, "already_authenticated")
		}
		return allow()
	}

	if !authenticated {
		return redirect(g.cfg.LoginPath, "unauthenticated")
	}

	if !actor.IsActive() {
		return redirect(g.cfg.LoginPath+"?reason=account_inactive", "account_inactive")
	}

	if !g.table.AllowsPath(actor.Role, path) {
		return redirect(g.cfg.DefaultLanding, "route_not_allowed")
	}

	// driver 只允许查自己的数据：显式 user_id 参数必须等于本人 id
	if actor.Role == RoleDriver {
		if target := strings.TrimSpace(query.Get("user_id")); target != "" && target != actor.ID {
			return redirect(g.cfg.DefaultLanding, "cross_actor_denied")
		}
	}

	return allow()
}

// Middleware 把闸门挂到路由树根部，保证没有绕过路径。
// Allow 时把 Actor 放进请求上下文，供 handler 取出后显式传参给服务层。
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := g.resolver.Resolve(r)
		authenticated := err == nil

		decision := g.Authorize(r.URL.Path, r.URL.Query(), actor, authenticated)
		switch decision.Kind {
		case DecisionAllow:
			if authenticated {
				r = r.WithContext(withActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		case DecisionRedirect:
			if g.log != nil {
				g.log.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"reason": decision.Reason,
				}).Debug("gate redirect")
			}
			http.Redirect(w, r, decision.Target, http.StatusSeeOther)
		default:
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "forbidden",
			})
		}
	})
}

func (g *Gate) isPublic(path string) bool {
	for _, prefix := range g.cfg.PublicRoutes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) isLoginRoute(path string) bool {
	for _, prefix := range g.cfg.LoginRoutes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext 取出闸门注入的 Actor。
// 只应在传输层 handler 里调用一次，然后作为显式参数传给服务层。
func ActorFromContext(ctx context.Context) (Actor, bool) {
	v := ctx.Value(actorContextKey{})
	if v == nil {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
