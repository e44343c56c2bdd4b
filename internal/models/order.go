package models

import (
	"time"
)

// Order 本地订单表
type Order struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                                              // 主键
	OrderKey         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`                                    // 订单访问密钥
	Status           string    `gorm:"type:varchar(32);index:idx_orders_sweep,priority:1;not null" json:"status"`         // 订单状态
	PaymentMethod    string    `gorm:"type:varchar(64);index:idx_orders_sweep,priority:2;not null" json:"payment_method"` // 支付方式
	RemoteResourceID string    `gorm:"type:varchar(64);index" json:"remote_resource_id,omitempty"`                        // 远端资源ID（写入后不可变更）
	Currency         string    `gorm:"type:varchar(8);not null;default:'EUR'" json:"currency"`                            // 币种
	TotalAmount      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`                         // 订单金额
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                                           // 创建时间
	UpdatedAt        time.Time `gorm:"index:idx_orders_sweep,priority:3" json:"updated_at"`                               // 最后修改时间

	Notes []OrderNote `gorm:"foreignKey:OrderID" json:"notes,omitempty"` // 订单备注
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
