package fleet

import (
	"fmt"
	"strings"
	"time"
)

// Status 车辆状态枚举（持久化为字符串）。
type Status string

const (
	StatusActive      Status = "ACTIVE"      // 在役
	StatusMaintenance Status = "MAINTENANCE" // 维修中
	StatusInactive    Status = "INACTIVE"    // 停用
)

// AllowTransition 车辆状态机的允许流转关系。
// 三个状态两两可达，没有自动流转：每次变更都是一次显式的授权更新。
var AllowTransition = map[Status][]Status{
	StatusActive:      {StatusMaintenance, StatusInactive},
	StatusMaintenance: {StatusActive, StatusInactive},
	StatusInactive:    {StatusActive, StatusMaintenance},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus 解析车辆状态；未知值报错。
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusMaintenance:
		return StatusMaintenance, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("unknown vehicle status: %q", s)
	}
}

// NormalizePlate 车牌统一大写去空格：唯一性和展示都按大小写不敏感处理。
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Vehicle 是 vehicles 表的 GORM 模型。
// 软删除：DeletedAt 非空的行对所有常规查询不可见，但仍可按 id 直查。
type Vehicle struct {
	ID       string `gorm:"primaryKey;size:36"`
	Plate    string `gorm:"uniqueIndex;size:32;not null"` // 大写存储
	Model    string `gorm:"size:64;not null"`
	Brand    string `gorm:"size:64"`
	Year     int    `gorm:"default:0"`
	FuelType string `gorm:"size:32"`
	Capacity int    `gorm:"default:0"`
	Status   Status `gorm:"type:varchar(16);index;not null;default:'ACTIVE'"`
	Notes    string `gorm:"size:512"`

	DeletedAt *time.Time `gorm:"index"` // 软删除时间戳（不用 gorm.DeletedAt：删除语义由仓储显式控制）
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

// Assignment 车辆-司机分配边（vehicle_assignments 表）。
// (vehicle_id, driver_id) 上的复合唯一索引是并发下防重复边的最终兜底；
// 应用层的前置检查只是为了给出友好的错误，不是唯一的保证。
// 解除分配是物理删除：历史分配不保留（与上游行为一致）。
type Assignment struct {
	ID               string    `gorm:"primaryKey;size:36"`
	VehicleID        string    `gorm:"size:36;not null;uniqueIndex:idx_vehicle_driver"`
	DriverID         string    `gorm:"size:36;not null;uniqueIndex:idx_vehicle_driver"` // role=driver 的用户 id
	AssignedByUserID string    `gorm:"size:36;not null"`                                // 操作人（审计）
	AssignedAt       time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (Assignment) TableName() string { return "vehicle_assignments" }

// MaintenanceRecord 维保记录（maintenance_records 表）。
// 车辆软删除后记录仍保留，可按车辆 id 直查。
type MaintenanceRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	VehicleID string    `gorm:"index;size:36;not null"`
	Type      string    `gorm:"size:32;not null"` // 保养 / 维修 / 年检等
	Status    string    `gorm:"size:16;not null;default:'SCHEDULED'"`
	Date      time.Time `gorm:"not null"`
	CostCents int64     `gorm:"not null;default:0"` // 金额（单位：分）
	Notes     string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
