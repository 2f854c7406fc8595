package rbac

import (
	"fmt"
	"strings"

	"github.com/FleetLink/FleetLink/internal/common/config"
)

// Role 固定四级角色。平铺枚举，层级之间没有隐式继承：
// 每一级的路由/动作集合都是显式枚举出来的。
type Role string

const (
	RoleDriver     Role = "driver"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// AllRoles 策略表必须对这四个角色都是全函数。
var AllRoles = []Role{RoleDriver, RoleManager, RoleAdmin, RoleSuperAdmin}

// ParseRole 解析角色字符串；未知角色一律报错（fail closed）。
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleDriver:
		return RoleDriver, nil
	case RoleManager:
		return RoleManager, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// AccountStatus 账号状态
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusInactive  AccountStatus = "inactive"
	StatusSuspended AccountStatus = "suspended"
)

// Action 业务动作标签（服务层权限检查的最小单位）
type Action string

const (
	ActionVehicleView       Action = "vehicle.view"
	ActionVehicleCreate     Action = "vehicle.create"
	ActionVehicleUpdate     Action = "vehicle.update"
	ActionVehicleDelete     Action = "vehicle.delete"
	ActionVehicleAssign     Action = "vehicle.assign"
	ActionVehicleUnassign   Action = "vehicle.unassign"
	ActionDriverList        Action = "driver.list"
	ActionMaintenanceCreate Action = "maintenance.create"
	ActionStatsView         Action = "stats.view"
	ActionUserManage        Action = "user.manage"
	ActionRoleGrant         Action = "role.grant"
)

// RolePolicy 单个角色的策略：允许的路由前缀 + 允许的动作。
type RolePolicy struct {
	RoutePrefixes []string
	Actions       map[Action]struct{}
}

// PolicyTable 角色策略表。加载后只读，不做运行期修改。
type PolicyTable struct {
	policies map[Role]RolePolicy
}

// RoutesFor 返回角色允许的路由前缀；未知角色返回空集，不报错也不放行。
func (t *PolicyTable) RoutesFor(role Role) []string {
	if t == nil {
		return nil
	}
	p, ok := t.policies[role]
	if !ok {
		return nil
	}
	return p.RoutePrefixes
}

// Permits 判断角色是否允许执行某个动作。未知角色/未知动作一律 false。
func (t *PolicyTable) Permits(role Role, action Action) bool {
	if t == nil {
		return false
	}
	p, ok := t.policies[role]
	if !ok {
		return false
	}
	_, ok = p.Actions[action]
	return ok
}

// AllowsPath 判断角色的路由前缀集中是否有 path 的前缀。
func (t *PolicyTable) AllowsPath(role Role, path string) bool {
	for _, prefix := range t.RoutesFor(role) {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func actionSet(actions ...Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// DefaultTable 内置默认策略。
// 注意每一级的路由列表都是完整枚举的：admin 不会自动获得 super_admin 的路由。
// /auth 前缀对所有已登录角色开放：登出/改密是每个账号自己的会话管理操作。
func DefaultTable() *PolicyTable {
	return &PolicyTable{policies: map[Role]RolePolicy{
		RoleDriver: {
			RoutePrefixes: []string{
				"/auth",
				"/dashboard", "/vehicles", "/trips", "/profile", "/calendar",
				"/api/vehicles", "/api/stats", "/api/profile",
			},
			Actions: actionSet(
				ActionVehicleView,
				ActionStatsView,
			),
		},
		RoleManager: {
			RoutePrefixes: []string{
				"/auth",
				"/dashboard", "/vehicles", "/trips", "/profile", "/calendar",
				"/drivers", "/maintenance", "/reports", "/agencies", "/hotels",
				"/api/vehicles", "/api/stats", "/api/profile", "/api/drivers", "/api/maintenance",
			},
			Actions: actionSet(
				ActionVehicleView,
				ActionVehicleCreate,
				ActionVehicleUpdate,
				ActionVehicleAssign,
				ActionVehicleUnassign,
				ActionDriverList,
				ActionMaintenanceCreate,
				ActionStatsView,
			),
		},
		RoleAdmin: {
			RoutePrefixes: []string{
				"/auth",
				"/dashboard", "/vehicles", "/trips", "/profile", "/calendar",
				"/drivers", "/maintenance", "/reports", "/agencies", "/hotels",
				"/users", "/exports",
				"/api/vehicles", "/api/stats", "/api/profile", "/api/drivers", "/api/maintenance",
				"/api/users",
			},
			Actions: actionSet(
				ActionVehicleView,
				ActionVehicleCreate,
				ActionVehicleUpdate,
				ActionVehicleDelete,
				ActionVehicleAssign,
				ActionVehicleUnassign,
				ActionDriverList,
				ActionMaintenanceCreate,
				ActionStatsView,
				ActionUserManage,
			),
		},
		RoleSuperAdmin: {
			RoutePrefixes: []string{
				"/auth",
				"/dashboard", "/vehicles", "/trips", "/profile", "/calendar",
				"/drivers", "/maintenance", "/reports", "/agencies", "/hotels",
				"/users", "/exports", "/settings",
				"/api/vehicles", "/api/stats", "/api/profile", "/api/drivers", "/api/maintenance",
				"/api/users", "/api/settings",
			},
			Actions: actionSet(
				ActionVehicleView,
				ActionVehicleCreate,
				ActionVehicleUpdate,
				ActionVehicleDelete,
				ActionVehicleAssign,
				ActionVehicleUnassign,
				ActionDriverList,
				ActionMaintenanceCreate,
				ActionStatsView,
				ActionUserManage,
				ActionRoleGrant,
			),
		},
	}}
}

// FromConfig 从配置构建策略表；配置缺角色/整体为空时退回默认表的对应项。
// 返回错误而不是 panic：启动期就应发现配置里写了未知角色。
func FromConfig(cfg config.RBACConfig) (*PolicyTable, error) {
	def := DefaultTable()
	if len(cfg.RoleRoutes) == 0 && len(cfg.RoleActions) == 0 {
		return def, nil
	}

	table := &PolicyTable{policies: make(map[Role]RolePolicy, len(AllRoles))}
	for _, role := range AllRoles {
		table.policies[role] = def.policies[role]
	}

	for roleStr, prefixes := range cfg.RoleRoutes {
		role, err := ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("rbac config role_routes: %w", err)
		}
		if len(prefixes) == 0 {
			return nil, fmt.Errorf("rbac config role_routes: empty prefix list for role %s", role)
		}
		p := table.policies[role]
		p.RoutePrefixes = append([]string(nil), prefixes...)
		table.policies[role] = p
	}

	for roleStr, actions := range cfg.RoleActions {
		role, err := ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("rbac config role_actions: %w", err)
		}
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			set[Action(a)] = struct{}{}
		}
		p := table.policies[role]
		p.Actions = set
		table.policies[role] = p
	}

	// 全函数校验：四个角色都必须有非空路由集。
	for _, role := range AllRoles {
		if len(table.policies[role].RoutePrefixes) == 0 {
			return nil, fmt.Errorf("rbac config: role %s has no route prefixes", role)
		}
	}

	return table, nil
}
