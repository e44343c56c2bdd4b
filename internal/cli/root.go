package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/payrecon/internal/config"
	"github.com/payrecon/internal/logger"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/provider"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "reconctl",
	Short:         "Operator tooling for the payment reconciliation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yml)")
}

// Execute 运行命令行入口
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig 读取配置并初始化日志
func loadConfig() *config.Config {
	if path := strings.TrimSpace(configFile); path != "" {
		viper.SetConfigFile(path)
	}
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	return cfg
}

// openContainer 连接数据库并装配服务容器，调用方负责 Close
func openContainer() (*provider.Container, error) {
	cfg := loadConfig()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := models.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return provider.NewContainer(cfg), nil
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
