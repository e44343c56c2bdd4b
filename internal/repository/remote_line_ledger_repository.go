package repository

import (
	"strings"

	"github.com/payrecon/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteLineLedgerRepository 远端行项目处理账本
type RemoteLineLedgerRepository interface {
	ListRecorded(orderID uint, kind string) (map[string]struct{}, error)
	Record(orderID uint, kind string, lineIDs []string) ([]string, error)
	WithTx(tx *gorm.DB) *GormRemoteLineLedgerRepository
}

// GormRemoteLineLedgerRepository GORM 实现
type GormRemoteLineLedgerRepository struct {
	db *gorm.DB
}

// NewRemoteLineLedgerRepository 创建账本仓库
func NewRemoteLineLedgerRepository(db *gorm.DB) *GormRemoteLineLedgerRepository {
	return &GormRemoteLineLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRemoteLineLedgerRepository) WithTx(tx *gorm.DB) *GormRemoteLineLedgerRepository {
	if tx == nil {
		return r
	}
	return &GormRemoteLineLedgerRepository{db: tx}
}

// ListRecorded 返回订单在指定类型下已记录的远端行ID集合
func (r *GormRemoteLineLedgerRepository) ListRecorded(orderID uint, kind string) (map[string]struct{}, error) {
	var lineIDs []string
	if err := r.db.Model(&models.ProcessedRemoteLine{}).
		Where("order_id = ? AND kind = ?", orderID, kind).
		Pluck("remote_line_id", &lineIDs).Error; err != nil {
		return nil, err
	}
	recorded := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		recorded[id] = struct{}{}
	}
	return recorded, nil
}

// Record 写入行ID，已存在的行被忽略，返回本次新写入的行ID
func (r *GormRemoteLineLedgerRepository) Record(orderID uint, kind string, lineIDs []string) ([]string, error) {
	inserted := make([]string, 0, len(lineIDs))
	seen := make(map[string]struct{}, len(lineIDs))
	for _, raw := range lineIDs {
		lineID := strings.TrimSpace(raw)
		if lineID == "" {
			continue
		}
		if _, ok := seen[lineID]; ok {
			continue
		}
		seen[lineID] = struct{}{}
		row := models.ProcessedRemoteLine{
			OrderID:      orderID,
			Kind:         kind,
			RemoteLineID: lineID,
		}
		result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			inserted = append(inserted, lineID)
		}
	}
	return inserted, nil
}
