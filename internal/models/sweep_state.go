package models

import "time"

// SweepState 过期扫描调度状态（全局单行）
type SweepState struct {
	Name       string     `gorm:"primarykey;type:varchar(64)" json:"name"` // 调度名称
	TaskID     string     `gorm:"type:varchar(128)" json:"task_id"`        // 当前已排队的任务ID
	NextRunAt  *time.Time `json:"next_run_at"`                             // 下一次执行时间
	LastRunAt  *time.Time `json:"last_run_at"`                             // 上一次执行时间
	LastResult JSON       `gorm:"type:json" json:"last_result"`            // 上一次执行摘要
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (SweepState) TableName() string {
	return "expiry_sweep_states"
}
