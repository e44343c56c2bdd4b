//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.ProcessedRemoteLine{},
		&models.OrderNote{},
		&models.SweepState{},
		&models.Order{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresOrderKeywordSearchIsCaseInsensitive(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewOrderRepository(db)

	order := &models.Order{OrderKey: "WC_Order_PG", Status: constants.OrderStatusPending, PaymentMethod: "psp_ideal", Currency: "EUR"}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	rows, total, err := repo.ListAdmin(OrderListFilter{Page: 1, PageSize: 20, Keyword: "wc_order_pg"})
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("keyword search want 1 got total=%d len=%d", total, len(rows))
	}
}

func TestPostgresCompareAndUpdateStatus(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewOrderRepository(db)

	order := &models.Order{OrderKey: "pg_cas", Status: constants.OrderStatusPending, PaymentMethod: "psp_ideal", Currency: "EUR"}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	ok, err := repo.CompareAndUpdateStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("first update should win: ok=%v err=%v", ok, err)
	}
	ok, err = repo.CompareAndUpdateStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusCancelled, nil)
	if err != nil || ok {
		t.Fatalf("stale update should lose: ok=%v err=%v", ok, err)
	}
}

func TestPostgresLedgerRecordIgnoresDuplicates(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	ledger := NewRemoteLineLedgerRepository(db)

	inserted, err := ledger.Record(7, constants.RemoteLineKindRefunded, []string{"odl_1", "odl_2"})
	if err != nil || len(inserted) != 2 {
		t.Fatalf("first record want 2 got %v err=%v", inserted, err)
	}
	inserted, err = ledger.Record(7, constants.RemoteLineKindRefunded, []string{"odl_2", "odl_3"})
	if err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	if len(inserted) != 1 || inserted[0] != "odl_3" {
		t.Fatalf("second record want [odl_3] got %v", inserted)
	}
}

func TestPostgresSweepStateRoundTrip(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewSweepStateRepository(db)

	next := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	if err := repo.Save(&models.SweepState{
		Name:       constants.ExpirySweepName,
		TaskID:     "cancel_unpaid_orders:pg",
		NextRunAt:  &next,
		LastResult: models.JSON{"cancelled": 2},
	}); err != nil {
		t.Fatalf("save state failed: %v", err)
	}
	state, err := repo.Get(constants.ExpirySweepName)
	if err != nil || state == nil {
		t.Fatalf("get state failed: %v", err)
	}
	if state.TaskID != "cancel_unpaid_orders:pg" || state.NextRunAt == nil || !state.NextRunAt.Equal(next) {
		t.Fatalf("unexpected state: %+v", state)
	}
}
