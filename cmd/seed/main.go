package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/repository"
	"github.com/payrecon/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	var perGateway int
	var amount string
	flag.IntVar(&perGateway, "per-gateway", 3, "每个网关生成的待支付订单数量")
	flag.StringVar(&amount, "amount", "19.95", "订单金额")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	total, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		stdLog.Fatalf("Invalid amount %q: %v", amount, err)
	}

	orderRepo := repository.NewOrderRepository(models.DB)
	orders := service.NewOrderService(orderRepo, repository.NewOrderNoteRepository(models.DB), service.NewEventBus())

	created := 0
	for _, gw := range cfg.Gateways {
		method := strings.TrimSpace(gw.ID)
		if method == "" {
			continue
		}
		for i := 1; i <= perGateway; i++ {
			key := fmt.Sprintf("seed_%s_%d", method, i)
			existing, err := orderRepo.GetByOrderKey(key)
			if err != nil {
				stdLog.Printf("Failed to look up order %s: %v", key, err)
				continue
			}
			if existing != nil {
				stdLog.Printf("Order already exists: %s (id=%d)", key, existing.ID)
				continue
			}
			order, err := orders.Register(service.RegisterOrderInput{
				OrderKey:      key,
				PaymentMethod: method,
				TotalAmount:   total,
			})
			if err != nil {
				stdLog.Printf("Failed to create order %s: %v", key, err)
				continue
			}
			created++
			stdLog.Printf("Created order: %s (id=%d, method=%s)", key, order.ID, method)
		}
	}
	stdLog.Printf("Seed finished, %d orders created", created)
}
