package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 应用程序配置
type Config struct {
	Database DatabaseConfig `json:"database"`
	Log      LogConfig      `json:"log"`
	Gateway  GatewayConfig  `json:"gateway"`
	MCP      MCPConfig      `json:"mcp"`
}

// DatabaseConfig 内嵌数据库连接配置
type DatabaseConfig struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
}

// GatewayConfig StoreGateway 行为配置
type GatewayConfig struct {
	// ChangeCapture 选择变更捕获策略："trigger" 或 "synthesis"
	ChangeCapture string `json:"change_capture"`
}

// MCPConfig 只读 MCP 内省服务配置
type MCPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "file::memory:?cache=shared",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Gateway: GatewayConfig{
			ChangeCapture: "trigger",
		},
		MCP: MCPConfig{
			Enabled: false,
			Addr:    "127.0.0.1:7777",
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault 尝试从常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	possiblePaths := []string{
		"config.json",
		"./config/config.json",
		"/etc/reactivesql/config.json",
	}

	if envPath := os.Getenv("REACTIVESQL_CONFIG"); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	return DefaultConfig()
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Database.MaxOpenConns < 1 {
		return fmt.Errorf("最大连接数必须大于0")
	}
	if config.Database.MaxIdleConns < 0 {
		return fmt.Errorf("最大空闲连接数不能为负数")
	}
	switch config.Gateway.ChangeCapture {
	case "trigger", "synthesis":
	default:
		return fmt.Errorf("未知的变更捕获策略: %s", config.Gateway.ChangeCapture)
	}
	return nil
}
