package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/db"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"gorm.io/gorm"
)

// Repo 车队域仓储。
// 角色相关的结果集裁剪全部集中在这里（ListForActor / StatsForActor），
// 调用层不允许再各自实现一遍过滤逻辑，避免口径漂移。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// scopedQuery 角色感知的基础查询：
// - 永远排除软删除行
// - driver 额外限定到有分配边的车辆
func (r *Repo) scopedQuery(ctx context.Context, actor rbac.Actor) *gorm.DB {
	q := r.withCtx(ctx)
	if q == nil {
		return nil
	}
	q = q.Model(&Vehicle{}).Where("vehicles.deleted_at IS NULL")
	if actor.Role == rbac.RoleDriver {
		q = q.Joins("JOIN vehicle_assignments ON vehicle_assignments.vehicle_id = vehicles.id").
			Where("vehicle_assignments.driver_id = ?", actor.ID)
	}
	return q
}

// ListForActor 按角色返回可见车辆集，按车牌排序。
func (r *Repo) ListForActor(ctx context.Context, actor rbac.Actor) ([]Vehicle, error) {
	q := r.scopedQuery(ctx, actor)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	if err := q.Order("vehicles.plate asc").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// Stats 车辆状态统计
type Stats struct {
	Total       int64 `json:"total"`
	Active      int64 `json:"active"`
	Maintenance int64 `json:"maintenance"`
	Inactive    int64 `json:"inactive"`
}

// StatsForActor 按角色口径统计车辆数（与 ListForActor 同一套裁剪规则）。
func (r *Repo) StatsForActor(ctx context.Context, actor rbac.Actor) (Stats, error) {
	var stats Stats
	counts := []struct {
		status Status
		dst    *int64
	}{
		{"", &stats.Total},
		{StatusActive, &stats.Active},
		{StatusMaintenance, &stats.Maintenance},
		{StatusInactive, &stats.Inactive},
	}
	for _, c := range counts {
		q := r.scopedQuery(ctx, actor)
		if q == nil {
			return Stats{}, fmt.Errorf("repo db is nil")
		}
		if c.status != "" {
			q = q.Where("vehicles.status = ?", c.status)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}

// FindByID 按 id 查车辆；软删除行视为不存在。
func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	err := q.Where("id = ? AND deleted_at IS NULL", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: vehicle", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByIDIncludingDeleted 按 id 直查，软删除行也返回（审计/历史场景）。
func (r *Repo) FindByIDIncludingDeleted(ctx context.Context, id string) (*Vehicle, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	err := q.Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: vehicle", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := q.Create(v).Error
	if err != nil && db.IsDuplicateKey(err) {
		return fmt.Errorf("%w: plate %s already exists", apperrors.ErrConflict, v.Plate)
	}
	return err
}

func (r *Repo) Update(ctx context.Context, v *Vehicle) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := q.Save(v).Error
	if err != nil && db.IsDuplicateKey(err) {
		return fmt.Errorf("%w: plate %s already exists", apperrors.ErrConflict, v.Plate)
	}
	return err
}

// SoftDelete 软删除：单行 UPDATE 写入 deleted_at，已删除的行不可重复删除。
func (r *Repo) SoftDelete(ctx context.Context, id string, now time.Time) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := q.Model(&Vehicle{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: vehicle", apperrors.ErrNotFound)
	}
	return nil
}

// IsDriverAssigned 是否存在 (vehicle, driver) 的分配边。
// 同时实现 rbac.AssignmentChecker，供服务层做行级归属检查。
func (r *Repo) IsDriverAssigned(ctx context.Context, vehicleID, driverID string) (bool, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var count int64
	err := q.Model(&Assignment{}).
		Where("vehicle_id = ? AND driver_id = ?", vehicleID, driverID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repo) FindAssignment(ctx context.Context, id string) (*Assignment, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var a Assignment
	err := q.Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: assignment", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment 创建分配边（单行 INSERT）。
// 复合唯一索引兜底并发：撞索引时翻译成确定性的 Conflict。
func (r *Repo) CreateAssignment(ctx context.Context, a *Assignment) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := q.Create(a).Error
	if err != nil && db.IsDuplicateKey(err) {
		return fmt.Errorf("%w: driver is already assigned to this vehicle", apperrors.ErrConflict)
	}
	return err
}

// DeleteAssignment 物理删除分配边。
func (r *Repo) DeleteAssignment(ctx context.Context, id string) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := q.Where("id = ?", id).Delete(&Assignment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: assignment", apperrors.ErrNotFound)
	}
	return nil
}

func (r *Repo) ListAssignmentsForVehicle(ctx context.Context, vehicleID string) ([]Assignment, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var assignments []Assignment
	err := q.Where("vehicle_id = ?", vehicleID).
		Order("assigned_at desc").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *Repo) CountAssignmentsForVehicle(ctx context.Context, vehicleID string) (int64, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var count int64
	err := q.Model(&Assignment{}).Where("vehicle_id = ?", vehicleID).Count(&count).Error
	return count, err
}

func (r *Repo) CreateMaintenance(ctx context.Context, m *MaintenanceRecord) error {
	q := r.withCtx(ctx)
	if q == nil {
		return fmt.Errorf("repo db is nil")
	}
	return q.Create(m).Error
}

// ListMaintenanceForVehicle 维保历史按日期倒序。
// 不联表车辆：车辆软删除后历史记录仍然可查。
func (r *Repo) ListMaintenanceForVehicle(ctx context.Context, vehicleID string) ([]MaintenanceRecord, error) {
	q := r.withCtx(ctx)
	if q == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var records []MaintenanceRecord
	err := q.Where("vehicle_id = ?", vehicleID).
		Order("date desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
