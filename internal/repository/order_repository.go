package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/payrecon/internal/models"

	"gorm.io/gorm"
)

// ErrRemoteResourceIDAssigned 远端资源ID已绑定其他值
var ErrRemoteResourceIDAssigned = errors.New("remote resource id already assigned")

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByOrderKey(orderKey string) (*models.Order, error)
	GetByRemoteResourceID(remoteID string) (*models.Order, error)
	ListAdmin(filter OrderListFilter) ([]models.Order, int64, error)
	ListStalePending(filter StalePendingFilter) ([]models.Order, error)
	CountByStatusAndMethod(status, paymentMethod string) (int64, error)
	CompareAndUpdateStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (bool, error)
	AssignRemoteResourceID(id uint, remoteID string) error
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Transaction 执行事务
func (r *GormOrderRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	if id == 0 {
		return nil, nil
	}
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderKey 根据访问密钥获取订单
func (r *GormOrderRepository) GetByOrderKey(orderKey string) (*models.Order, error) {
	return r.firstWhere("order_key = ?", strings.TrimSpace(orderKey))
}

// GetByRemoteResourceID 根据远端资源ID获取订单
func (r *GormOrderRepository) GetByRemoteResourceID(remoteID string) (*models.Order, error) {
	return r.firstWhere("remote_resource_id = ?", strings.TrimSpace(remoteID))
}

func (r *GormOrderRepository) firstWhere(query string, value string) (*models.Order, error) {
	if value == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where(query, value).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListAdmin 管理端订单列表
func (r *GormOrderRepository) ListAdmin(filter OrderListFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	query := r.db.Model(&models.Order{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.RemoteResourceID != "" {
		query = query.Where("remote_resource_id = ?", filter.RemoteResourceID)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"order_key", "remote_resource_id"})
		query = query.Where(condition, repeatLikeArgs("%"+keyword+"%", argCount)...)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListStalePending 查询指定支付方式下最后修改早于截止时间的待支付订单
func (r *GormOrderRepository) ListStalePending(filter StalePendingFilter) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.Model(&models.Order{}).
		Where("status = ? AND payment_method = ? AND updated_at < ?", filter.Status, filter.PaymentMethod, filter.ModifiedBefore).
		Order("updated_at asc").
		Order("id asc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// CountByStatusAndMethod 统计指定状态与支付方式的订单数量
func (r *GormOrderRepository) CountByStatusAndMethod(status, paymentMethod string) (int64, error) {
	var total int64
	if err := r.db.Model(&models.Order{}).
		Where("status = ? AND payment_method = ?", status, paymentMethod).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CompareAndUpdateStatus 仅当当前状态等于 fromStatus 时更新，返回是否更新成功
func (r *GormOrderRepository) CompareAndUpdateStatus(id uint, fromStatus, toStatus string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = toStatus
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AssignRemoteResourceID 绑定远端资源ID，已绑定相同值时视为成功
func (r *GormOrderRepository) AssignRemoteResourceID(id uint, remoteID string) error {
	remoteID = strings.TrimSpace(remoteID)
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND (remote_resource_id = '' OR remote_resource_id IS NULL)", id).
		Update("remote_resource_id", remoteID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	current, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if current == nil {
		return gorm.ErrRecordNotFound
	}
	if current.RemoteResourceID == remoteID {
		return nil
	}
	return ErrRemoteResourceIDAssigned
}
