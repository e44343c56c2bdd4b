package repository

import (
	"errors"

	"github.com/payrecon/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SweepStateRepository 过期扫描调度状态数据访问接口
type SweepStateRepository interface {
	Get(name string) (*models.SweepState, error)
	Save(state *models.SweepState) error
}

// GormSweepStateRepository GORM 实现
type GormSweepStateRepository struct {
	db *gorm.DB
}

// NewSweepStateRepository 创建调度状态仓库
func NewSweepStateRepository(db *gorm.DB) *GormSweepStateRepository {
	return &GormSweepStateRepository{db: db}
}

// Get 获取调度状态，不存在时返回 nil
func (r *GormSweepStateRepository) Get(name string) (*models.SweepState, error) {
	var state models.SweepState
	if err := r.db.Where("name = ?", name).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Save 写入或覆盖调度状态
func (r *GormSweepStateRepository) Save(state *models.SweepState) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"task_id", "next_run_at", "last_run_at", "last_result", "updated_at"}),
	}).Create(state).Error
}
