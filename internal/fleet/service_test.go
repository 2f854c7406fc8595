package fleet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/FleetLink/FleetLink/internal/common/apperrors"
	"github.com/FleetLink/FleetLink/internal/rbac"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeDrivers 内存司机目录。
type fakeDrivers struct {
	actors map[string]rbac.Actor
}

func (f *fakeDrivers) FindActor(ctx context.Context, id string) (rbac.Actor, error) {
	a, ok := f.actors[id]
	if !ok {
		return rbac.Actor{}, fmt.Errorf("%w: user", apperrors.ErrNotFound)
	}
	return a, nil
}

func (f *fakeDrivers) ListDriverActors(ctx context.Context) ([]rbac.Actor, error) {
	var out []rbac.Actor
	for _, a := range f.actors {
		if a.Role == rbac.RoleDriver {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *Repo, *fakeDrivers) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&Vehicle{}, &Assignment{}, &MaintenanceRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepo(gdb)
	drivers := &fakeDrivers{actors: map[string]rbac.Actor{
		"u-driver":  {ID: "u-driver", Role: rbac.RoleDriver, Status: rbac.StatusActive, Name: "Li Lei"},
		"u-driver2": {ID: "u-driver2", Role: rbac.RoleDriver, Status: rbac.StatusActive, Name: "Han Meimei"},
		"u-manager": {ID: "u-manager", Role: rbac.RoleManager, Status: rbac.StatusActive},
	}}
	authz := rbac.NewAuthorizer(rbac.DefaultTable(), repo)
	return NewService(repo, drivers, authz, nil), repo, drivers
}

var (
	testManager = rbac.Actor{ID: "u-manager", Role: rbac.RoleManager, Status: rbac.StatusActive}
	testAdmin   = rbac.Actor{ID: "u-admin", Role: rbac.RoleAdmin, Status: rbac.StatusActive}
	testDriver  = rbac.Actor{ID: "u-driver", Role: rbac.RoleDriver, Status: rbac.StatusActive}
)

func mustCreateVehicle(t *testing.T, svc *Service, plate string) *Vehicle {
	t.Helper()
	v, err := svc.CreateVehicle(context.Background(), testManager, CreateVehicleInput{
		Plate: plate,
		Model: "Sprinter",
		Brand: "Mercedes",
	})
	if err != nil {
		t.Fatalf("CreateVehicle(%s): %v", plate, err)
	}
	return v
}

func TestCreateVehicleNormalizesPlate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v := mustCreateVehicle(t, svc, " abc123 ")
	if v.Plate != "ABC123" {
		t.Fatalf("expected normalized plate ABC123, got %q", v.Plate)
	}
	if v.Status != StatusActive {
		t.Fatalf("expected default status ACTIVE, got %s", v.Status)
	}

	// 同一车牌换个大小写应撞唯一约束
	_, err := svc.CreateVehicle(ctx, testManager, CreateVehicleInput{Plate: "abc123", Model: "Sprinter"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on duplicate plate, got %v", err)
	}

	// driver 无建车权限
	_, err = svc.CreateVehicle(ctx, testDriver, CreateVehicleInput{Plate: "XYZ789", Model: "Sprinter"})
	if !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for driver, got %v", err)
	}
}

func TestUpdateVehicleStatusTransition(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	v := mustCreateVehicle(t, svc, "AAA111")

	to := string(StatusMaintenance)
	updated, err := svc.UpdateVehicle(ctx, testManager, v.ID, UpdateVehicleInput{Status: &to})
	if err != nil {
		t.Fatalf("UpdateVehicle: %v", err)
	}
	if updated.Status != StatusMaintenance {
		t.Fatalf("expected MAINTENANCE, got %s", updated.Status)
	}

	bad := "SCRAPPED"
	if _, err := svc.UpdateVehicle(ctx, testManager, v.ID, UpdateVehicleInput{Status: &bad}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestListScopingByRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v1 := mustCreateVehicle(t, svc, "AAA111")
	mustCreateVehicle(t, svc, "BBB222")

	// manager 见全集
	all, err := svc.ListVehicles(ctx, testManager)
	if err != nil {
		t.Fatalf("ListVehicles(manager): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager should see 2 vehicles, got %d", len(all))
	}

	// driver 未分配时见空集
	mine, err := svc.ListVehicles(ctx, testDriver)
	if err != nil {
		t.Fatalf("ListVehicles(driver): %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("unassigned driver should see 0 vehicles, got %d", len(mine))
	}

	// 分配后只见自己名下的车
	if _, err := svc.AssignDriver(ctx, testManager, v1.ID, "u-driver"); err != nil {
		t.Fatalf("AssignDriver: %v", err)
	}
	mine, err = svc.ListVehicles(ctx, testDriver)
	if err != nil {
		t.Fatalf("ListVehicles(driver after assign): %v", err)
	}
	if len(mine) != 1 || mine[0].ID != v1.ID {
		t.Fatalf("driver should see only assigned vehicle, got %+v", mine)
	}

	// 统计口径与列表一致
	stats, err := svc.VehicleStats(ctx, testDriver)
	if err != nil {
		t.Fatalf("VehicleStats(driver): %v", err)
	}
	if stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("driver stats should count only assigned vehicles, got %+v", stats)
	}
	stats, err = svc.VehicleStats(ctx, testManager)
	if err != nil {
		t.Fatalf("VehicleStats(manager): %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("manager stats should count all vehicles, got %+v", stats)
	}
}

func TestGetVehicleRowScope(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v1 := mustCreateVehicle(t, svc, "AAA111")
	v2 := mustCreateVehicle(t, svc, "BBB222")
	if _, err := svc.AssignDriver(ctx, testManager, v1.ID, "u-driver"); err != nil {
		t.Fatalf("AssignDriver: %v", err)
	}

	// driver 可以看自己名下的车
	if _, err := svc.GetVehicle(ctx, testDriver, v1.ID); err != nil {
		t.Fatalf("GetVehicle(own): %v", err)
	}
	// 别人的车按拒绝处理（车存在这一事实本身不该泄露到错误分类之外）
	if _, err := svc.GetVehicle(ctx, testDriver, v2.ID); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for foreign vehicle, got %v", err)
	}
	// 不存在的车对任何角色都是 NotFound
	if _, err := svc.GetVehicle(ctx, testManager, "v-missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignDriverPreconditions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	v := mustCreateVehicle(t, svc, "AAA111")

	// 车辆不存在
	if _, err := svc.AssignDriver(ctx, testManager, "v-missing", "u-driver"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for missing vehicle, got %v", err)
	}
	// 司机不存在
	if _, err := svc.AssignDriver(ctx, testManager, v.ID, "u-missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for missing driver, got %v", err)
	}
	// 目标用户不是 driver 角色
	if _, err := svc.AssignDriver(ctx, testManager, v.ID, "u-manager"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for non-driver user, got %v", err)
	}

	a, err := svc.AssignDriver(ctx, testManager, v.ID, "u-driver")
	if err != nil {
		t.Fatalf("AssignDriver: %v", err)
	}
	if a.AssignedByUserID != testManager.ID {
		t.Fatalf("expected assigned_by %s, got %s", testManager.ID, a.AssignedByUserID)
	}

	// 重复分配同一对是冲突
	if _, err := svc.AssignDriver(ctx, testManager, v.ID, "u-driver"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on duplicate edge, got %v", err)
	}

	// 一车可以分给第二个司机（多对多）
	if _, err := svc.AssignDriver(ctx, testManager, v.ID, "u-driver2"); err != nil {
		t.Fatalf("AssignDriver(second driver): %v", err)
	}

	// 解除分配后可重新分配
	if err := svc.UnassignDriver(ctx, testManager, a.ID); err != nil {
		t.Fatalf("UnassignDriver: %v", err)
	}
	if err := svc.UnassignDriver(ctx, testManager, a.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found on double unassign, got %v", err)
	}
	if _, err := svc.AssignDriver(ctx, testManager, v.ID, "u-driver"); err != nil {
		t.Fatalf("AssignDriver(after unassign): %v", err)
	}
}

func TestSoftDeleteVisibility(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	v := mustCreateVehicle(t, svc, "AAA111")
	if _, err := svc.AddMaintenance(ctx, testManager, v.ID, MaintenanceInput{Type: "inspection"}); err != nil {
		t.Fatalf("AddMaintenance: %v", err)
	}

	// driver 无删除权限，admin 才有
	if err := svc.DeleteVehicle(ctx, testManager, v.ID); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for manager delete, got %v", err)
	}
	if err := svc.DeleteVehicle(ctx, testAdmin, v.ID); err != nil {
		t.Fatalf("DeleteVehicle: %v", err)
	}

	// 删除后：列表不可见，但按 id 直查仍返回该行（带 deleted_at 标记）
	all, err := svc.ListVehicles(ctx, testManager)
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("deleted vehicle should not be listed, got %d", len(all))
	}
	detail, err := svc.GetVehicle(ctx, testManager, v.ID)
	if err != nil {
		t.Fatalf("GetVehicle after soft delete: %v", err)
	}
	if detail.Vehicle.DeletedAt == nil {
		t.Fatalf("expected deleted_at set on soft-deleted vehicle detail")
	}
	if len(detail.Maintenance) != 1 {
		t.Fatalf("expected maintenance history on soft-deleted detail, got %d", len(detail.Maintenance))
	}

	// 二次删除是 NotFound（单行 UPDATE 没改到行）
	if err := svc.DeleteVehicle(ctx, testAdmin, v.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}

	// 维保历史仍可按车辆 id 直查
	records, err := svc.MaintenanceHistory(ctx, testManager, v.ID)
	if err != nil {
		t.Fatalf("MaintenanceHistory after delete: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 maintenance record, got %d", len(records))
	}

	// 仓储层还能按 id 直查到软删行
	row, err := repo.FindByIDIncludingDeleted(ctx, v.ID)
	if err != nil {
		t.Fatalf("FindByIDIncludingDeleted: %v", err)
	}
	if row.DeletedAt == nil {
		t.Fatalf("expected deleted_at set")
	}

	// 车牌被软删行占用：同车牌再建仍然冲突（唯一索引不区分软删）
	if _, err := svc.CreateVehicle(ctx, testManager, CreateVehicleInput{Plate: "AAA111", Model: "Sprinter"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict re-using plate of deleted vehicle, got %v", err)
	}
}

func TestAvailableDrivers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// driver 无权限列司机
	if _, err := svc.AvailableDrivers(ctx, testDriver); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("expected permission denied for driver, got %v", err)
	}

	drivers, err := svc.AvailableDrivers(ctx, testManager)
	if err != nil {
		t.Fatalf("AvailableDrivers: %v", err)
	}
	if len(drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(drivers))
	}
	for _, d := range drivers {
		if d.Role != rbac.RoleDriver {
			t.Fatalf("expected only driver role, got %s", d.Role)
		}
	}
}
