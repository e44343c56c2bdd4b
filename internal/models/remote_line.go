package models

import "time"

// ProcessedRemoteLine 已记录备注的远端行项目账本
type ProcessedRemoteLine struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                                        // 主键
	OrderID      uint      `gorm:"uniqueIndex:idx_processed_remote_line;not null" json:"order_id"`              // 订单ID
	Kind         string    `gorm:"type:varchar(32);uniqueIndex:idx_processed_remote_line;not null" json:"kind"` // refunded / cancelled
	RemoteLineID string    `gorm:"type:varchar(64);uniqueIndex:idx_processed_remote_line;not null" json:"remote_line_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (ProcessedRemoteLine) TableName() string {
	return "processed_remote_lines"
}
