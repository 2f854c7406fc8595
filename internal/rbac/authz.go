package rbac

import (
	"context"
	"fmt"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
)

// AssignmentChecker 行级归属检查的边界接口（由 fleet 仓储实现）。
type AssignmentChecker interface {
	IsDriverAssigned(ctx context.Context, vehicleID, driverID string) (bool, error)
}

// Authorizer 服务层鉴权：角色成员检查 + 行级归属检查。
// 闸门放行不代表操作放行，每个业务操作都要重新过这里（纵深防御）。
type Authorizer struct {
	table       *PolicyTable
	assignments AssignmentChecker
}

// NewAuthorizer 创建服务层鉴权器
func NewAuthorizer(table *PolicyTable, assignments AssignmentChecker) *Authorizer {
	return &Authorizer{table: table, assignments: assignments}
}

// CheckPermission 纯角色成员检查：actor.Role 必须在动作的允许集内。
func (a *Authorizer) CheckPermission(actor Actor, action Action) error {
	if a == nil || a.table == nil {
		return fmt.Errorf("%w: authorizer not initialized", apperrors.ErrPermissionDenied)
	}
	if !a.table.Permits(actor.Role, action) {
		return fmt.Errorf("%w: role %s cannot perform %s", apperrors.ErrPermissionDenied, actor.Role, action)
	}
	return nil
}

// CheckVehicleAccess 行级检查：
// - manager / admin / super_admin 凭角色即可访问任意车辆
// - driver 额外要求存在 (vehicle, driver) 的分配边
// - 其余情况一律拒绝
func (a *Authorizer) CheckVehicleAccess(ctx context.Context, actor Actor, vehicleID string) error {
	switch actor.Role {
	case RoleManager, RoleAdmin, RoleSuperAdmin:
		return nil
	case RoleDriver:
		if a.assignments == nil {
			return fmt.Errorf("%w: assignment checker not configured", apperrors.ErrPermissionDenied)
		}
		assigned, err := a.assignments.IsDriverAssigned(ctx, vehicleID, actor.ID)
		if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		if !assigned {
			return fmt.Errorf("%w: vehicle not assigned to driver", apperrors.ErrPermissionDenied)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", apperrors.ErrPermissionDenied, actor.Role)
	}
}
