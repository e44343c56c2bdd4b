package repository

import (
	"github.com/payrecon/internal/models"

	"gorm.io/gorm"
)

// OrderNoteRepository 订单备注数据访问接口
type OrderNoteRepository interface {
	Create(note *models.OrderNote) error
	List(filter OrderNoteListFilter) ([]models.OrderNote, int64, error)
	WithTx(tx *gorm.DB) *GormOrderNoteRepository
}

// GormOrderNoteRepository GORM 实现
type GormOrderNoteRepository struct {
	db *gorm.DB
}

// NewOrderNoteRepository 创建订单备注仓库
func NewOrderNoteRepository(db *gorm.DB) *GormOrderNoteRepository {
	return &GormOrderNoteRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderNoteRepository) WithTx(tx *gorm.DB) *GormOrderNoteRepository {
	if tx == nil {
		return r
	}
	return &GormOrderNoteRepository{db: tx}
}

// Create 追加备注
func (r *GormOrderNoteRepository) Create(note *models.OrderNote) error {
	return r.db.Create(note).Error
}

// List 按订单查询备注，按写入顺序返回
func (r *GormOrderNoteRepository) List(filter OrderNoteListFilter) ([]models.OrderNote, int64, error) {
	var notes []models.OrderNote
	query := r.db.Model(&models.OrderNote{}).Where("order_id = ?", filter.OrderID)
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id asc").Find(&notes).Error; err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}
