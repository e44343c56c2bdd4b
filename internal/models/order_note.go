package models

import "time"

// OrderNote 订单备注（只追加）
type OrderNote struct {
	ID        uint      `gorm:"primarykey" json:"id"`                    // 主键
	OrderID   uint      `gorm:"index;not null" json:"order_id"`          // 订单ID
	Source    string    `gorm:"type:varchar(32);not null" json:"source"` // 来源（remote/manual/expiry/host）
	Content   string    `gorm:"type:text;not null" json:"content"`       // 备注内容
	CreatedAt time.Time `gorm:"index" json:"created_at"`                 // 创建时间
}

// TableName 指定表名
func (OrderNote) TableName() string {
	return "order_notes"
}
