package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/common/logger"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"github.com/google/uuid"
)

// DriverDirectory 身份域的边界接口：确认/枚举可用的司机账号。
// 车队域只拿 id 弱引用用户，不直接依赖 users 表结构。
type DriverDirectory interface {
	FindActor(ctx context.Context, id string) (rbac.Actor, error)
	ListDriverActors(ctx context.Context) ([]rbac.Actor, error)
}

// Service 车队域用例。
// 每个操作显式接收 Actor 并重新做服务层鉴权：路由闸门的放行是按路由的粗粒度
// 判定，这里是按记录的细粒度判定，两层都过才会碰到仓储。
type Service struct {
	repo    *Repo
	drivers DriverDirectory
	authz   *rbac.Authorizer
	log     logger.Logger
}

func NewService(repo *Repo, drivers DriverDirectory, authz *rbac.Authorizer, log logger.Logger) *Service {
	return &Service{repo: repo, drivers: drivers, authz: authz, log: log}
}

// CreateVehicleInput 创建车辆入参
type CreateVehicleInput struct {
	Plate    string
	Model    string
	Brand    string
	Year     int
	FuelType string
	Capacity int
	Status   string
	Notes    string
}

// UpdateVehicleInput 更新车辆入参（nil 表示该字段不更新）
type UpdateVehicleInput struct {
	Plate    *string
	Model    *string
	Brand    *string
	Year     *int
	FuelType *string
	Capacity *int
	Status   *string
	Notes    *string
}

// ListVehicles 按角色返回可见车辆集（裁剪规则集中在仓储）。
func (s *Service) ListVehicles(ctx context.Context, actor rbac.Actor) ([]Vehicle, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleView); err != nil {
		return nil, err
	}
	return s.repo.ListForActor(ctx, actor)
}

// VehicleDetail 单车详情（含分配边和维保历史）
type VehicleDetail struct {
	Vehicle     Vehicle             `json:"vehicle"`
	Assignments []Assignment        `json:"assignments"`
	Maintenance []MaintenanceRecord `json:"maintenance"`
}

// GetVehicle 查询单车：先确认存在，再做行级归属检查（driver 只能看自己名下的车）。
// 按 id 直查不过滤软删除：已删车辆及其历史维保记录仍可回看，只是不再出现在列表里。
func (s *Service) GetVehicle(ctx context.Context, actor rbac.Actor, vehicleID string) (*VehicleDetail, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleView); err != nil {
		return nil, err
	}

	v, err := s.repo.FindByIDIncludingDeleted(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.CheckVehicleAccess(ctx, actor, vehicleID); err != nil {
		return nil, err
	}

	assignments, err := s.repo.ListAssignmentsForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	maintenance, err := s.repo.ListMaintenanceForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return &VehicleDetail{Vehicle: *v, Assignments: assignments, Maintenance: maintenance}, nil
}

// CreateVehicle 创建车辆；车牌入库前统一大写。
func (s *Service) CreateVehicle(ctx context.Context, actor rbac.Actor, in CreateVehicleInput) (*Vehicle, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleCreate); err != nil {
		return nil, err
	}

	plate := NormalizePlate(in.Plate)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate required", apperrors.ErrInvalidInput)
	}
	model := strings.TrimSpace(in.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model required", apperrors.ErrInvalidInput)
	}

	st := StatusActive
	if strings.TrimSpace(in.Status) != "" {
		parsed, err := ParseStatus(in.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		st = parsed
	}

	v := &Vehicle{
		ID:       uuid.NewString(),
		Plate:    plate,
		Model:    model,
		Brand:    strings.TrimSpace(in.Brand),
		Year:     in.Year,
		FuelType: strings.TrimSpace(in.FuelType),
		Capacity: in.Capacity,
		Status:   st,
		Notes:    strings.TrimSpace(in.Notes),
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateVehicle 部分更新；状态变更走状态机校验，车牌重新归一化。
func (s *Service) UpdateVehicle(ctx context.Context, actor rbac.Actor, vehicleID string, in UpdateVehicleInput) (*Vehicle, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleUpdate); err != nil {
		return nil, err
	}

	v, err := s.repo.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if in.Plate != nil {
		plate := NormalizePlate(*in.Plate)
		if plate == "" {
			return nil, fmt.Errorf("%w: plate required", apperrors.ErrInvalidInput)
		}
		v.Plate = plate
	}
	if in.Model != nil {
		model := strings.TrimSpace(*in.Model)
		if model == "" {
			return nil, fmt.Errorf("%w: model required", apperrors.ErrInvalidInput)
		}
		v.Model = model
	}
	if in.Brand != nil {
		v.Brand = strings.TrimSpace(*in.Brand)
	}
	if in.Year != nil {
		v.Year = *in.Year
	}
	if in.FuelType != nil {
		v.FuelType = strings.TrimSpace(*in.FuelType)
	}
	if in.Capacity != nil {
		v.Capacity = *in.Capacity
	}
	if in.Notes != nil {
		v.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Status != nil {
		to, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		if !CanTransition(v.Status, to) {
			return nil, fmt.Errorf("%w: invalid status transition %s -> %s", apperrors.ErrInvalidInput, v.Status, to)
		}
		v.Status = to
	}

	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVehicle 软删除（单行 UPDATE，一次操作原子完成）。
func (s *Service) DeleteVehicle(ctx context.Context, actor rbac.Actor, vehicleID string) error {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleDelete); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, vehicleID, time.Now())
}

// AssignDriver 建立车辆-司机分配边。
//
// 前置条件按序检查：
//  1. 车辆存在且未软删除（否则 NotFound）
//  2. 司机存在且 role=driver（否则 NotFound）
//  3. (vehicle, driver) 没有既有边（否则 Conflict）
//
// 检查-再-创建存在并发窗口：同一对并发 assign 时由存储层的复合唯一索引
// 决出确定性的 Conflict，这里的前置检查只负责快速友好的报错。
func (s *Service) AssignDriver(ctx context.Context, actor rbac.Actor, vehicleID, driverID string) (*Assignment, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleAssign); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, vehicleID); err != nil {
		return nil, err
	}

	driver, err := s.drivers.FindActor(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("%w: driver", apperrors.ErrNotFound)
	}
	if driver.Role != rbac.RoleDriver {
		return nil, fmt.Errorf("%w: driver", apperrors.ErrNotFound)
	}

	assigned, err := s.repo.IsDriverAssigned(ctx, vehicleID, driverID)
	if err != nil {
		return nil, err
	}
	if assigned {
		return nil, fmt.Errorf("%w: driver is already assigned to this vehicle", apperrors.ErrConflict)
	}

	a := &Assignment{
		ID:               uuid.NewString(),
		VehicleID:        vehicleID,
		DriverID:         driverID,
		AssignedByUserID: actor.ID,
		AssignedAt:       time.Now(),
	}
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"vehicle_id":  vehicleID,
			"driver_id":   driverID,
			"assigned_by": actor.ID,
		}).Info("driver assigned")
	}
	return a, nil
}

// UnassignDriver 解除分配（物理删除边，不保留历史）。
func (s *Service) UnassignDriver(ctx context.Context, actor rbac.Actor, assignmentID string) error {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleUnassign); err != nil {
		return err
	}
	if _, err := s.repo.FindAssignment(ctx, assignmentID); err != nil {
		return err
	}
	return s.repo.DeleteAssignment(ctx, assignmentID)
}

// AvailableDrivers 可供分配的司机列表（分配下拉框用）。
func (s *Service) AvailableDrivers(ctx context.Context, actor rbac.Actor) ([]rbac.Actor, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionDriverList); err != nil {
		return nil, err
	}
	return s.drivers.ListDriverActors(ctx)
}

// VehicleStats 车辆状态统计（与列表同一套角色裁剪口径）。
func (s *Service) VehicleStats(ctx context.Context, actor rbac.Actor) (Stats, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionStatsView); err != nil {
		return Stats{}, err
	}
	return s.repo.StatsForActor(ctx, actor)
}

// MaintenanceInput 维保记录入参
type MaintenanceInput struct {
	Type      string
	Status    string
	Date      time.Time
	CostCents int64
	Notes     string
}

// AddMaintenance 登记维保记录。
func (s *Service) AddMaintenance(ctx context.Context, actor rbac.Actor, vehicleID string, in MaintenanceInput) (*MaintenanceRecord, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionMaintenanceCreate); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, vehicleID); err != nil {
		return nil, err
	}

	mType := strings.TrimSpace(in.Type)
	if mType == "" {
		return nil, fmt.Errorf("%w: maintenance type required", apperrors.ErrInvalidInput)
	}
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status == "" {
		status = "SCHEDULED"
	}
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	m := &MaintenanceRecord{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		Type:      mType,
		Status:    status,
		Date:      date,
		CostCents: in.CostCents,
		Notes:     strings.TrimSpace(in.Notes),
	}
	if err := s.repo.CreateMaintenance(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MaintenanceHistory 维保历史：按 id 直查，车辆软删除后依然可见。
// 行级归属检查仍然生效（driver 只能看自己名下车辆的历史）。
func (s *Service) MaintenanceHistory(ctx context.Context, actor rbac.Actor, vehicleID string) ([]MaintenanceRecord, error) {
	if err := s.authz.CheckPermission(actor, rbac.ActionVehicleView); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByIDIncludingDeleted(ctx, vehicleID); err != nil {
		return nil, err
	}
	if err := s.authz.CheckVehicleAccess(ctx, actor, vehicleID); err != nil {
		return nil, err
	}
	return s.repo.ListMaintenanceForVehicle(ctx, vehicleID)
}
