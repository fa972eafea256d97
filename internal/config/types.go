package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 存储与索引后端类型。
const (
	StorageFilesystem = "filesystem"
	StorageAzureBlob  = "azureblob"

	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
)

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// StorageConfig 选择包文件的落盘位置：本地目录或 Azure Blob 容器。
type StorageConfig struct {
	Type             string `mapstructure:"Type"`
	Path             string `mapstructure:"Path"`
	ContainerName    string `mapstructure:"ContainerName"`
	ConnectionString string `mapstructure:"ConnectionString"`
}

// DatabaseConfig 选择包索引后端。
type DatabaseConfig struct {
	Type string `mapstructure:"Type"`
	DSN  string `mapstructure:"DSN"`
}

// MirrorConfig 控制读穿镜像：本地缺失的包首次访问时从 Upstream 拉取。
type MirrorConfig struct {
	Enabled                bool     `mapstructure:"Enabled"`
	Upstream               string   `mapstructure:"Upstream"`
	PackageDownloadTimeout Duration `mapstructure:"PackageDownloadTimeout"`
}

// LicenseFilterConfig 是许可证黑名单，模式为不区分大小写的正则表达式。
type LicenseFilterConfig struct {
	Enabled         bool     `mapstructure:"Enabled"`
	BlockedPatterns []string `mapstructure:"BlockedPatterns"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global        GlobalConfig        `mapstructure:",squash"`
	Storage       StorageConfig       `mapstructure:"Storage"`
	Database      DatabaseConfig      `mapstructure:"Database"`
	Mirror        MirrorConfig        `mapstructure:"Mirror"`
	LicenseFilter LicenseFilterConfig `mapstructure:"LicenseFilter"`
}

// Summary 输出启动日志使用的后端摘要，例如 filesystem+memory。
func (c *Config) Summary() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s+%s", c.Storage.Type, c.Database.Type)
}
