package model

import (
	"time"
)

// Run 一次批量执行记录
type Run struct {
	ID        string      `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Commands  string      `json:"commands" gorm:"type:text;not null"`
	Status    string      `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	Duration  int64       `json:"duration"` // 执行时长，毫秒
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	Devices   []RunDevice `json:"devices,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (Run) TableName() string {
	return "runs"
}

// RunStatus 执行状态枚举
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
)

// RunDevice 单台设备的执行记录
type RunDevice struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID     string    `json:"run_id" gorm:"type:varchar(64);not null;index"`
	Seq       int       `json:"seq"` // 完成顺序
	DeviceIP  string    `json:"device_ip" gorm:"type:varchar(64);not null;index"`
	Vendor    string    `json:"vendor" gorm:"type:varchar(32)"`
	Success   bool      `json:"success"`
	ErrorKind string    `json:"error_kind" gorm:"type:varchar(32)"`
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	Result    string    `json:"result" gorm:"type:text"` // 命令结果 JSON
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration"` // 毫秒
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (RunDevice) TableName() string {
	return "run_devices"
}
