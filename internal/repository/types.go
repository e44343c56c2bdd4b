package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page             int
	PageSize         int
	Status           string
	PaymentMethod    string
	RemoteResourceID string
	Keyword          string // 按订单密钥或远端资源ID模糊匹配
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// StalePendingFilter 过期扫描查询条件
type StalePendingFilter struct {
	Status         string
	PaymentMethod  string
	ModifiedBefore time.Time
	Limit          int
}

// OrderNoteListFilter 查询订单备注的过滤条件
type OrderNoteListFilter struct {
	Page     int
	PageSize int
	OrderID  uint
	Source   string
}
