package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
// 黑名单正则能否编译由 license.New 在启动时检查。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	switch c.Storage.Type {
	case StorageFilesystem:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return newFieldError("Storage.Path", "不能为空")
		}
	case StorageAzureBlob:
		if strings.TrimSpace(c.Storage.ConnectionString) == "" {
			return newFieldError("Storage.ConnectionString", "azureblob 存储必须提供连接串")
		}
		if strings.TrimSpace(c.Storage.ContainerName) == "" {
			return newFieldError("Storage.ContainerName", "不能为空")
		}
	default:
		return newFieldError("Storage.Type", "仅支持 filesystem|azureblob")
	}

	switch c.Database.Type {
	case DatabaseMemory:
	case DatabasePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return newFieldError("Database.DSN", "postgres 索引必须提供 DSN")
		}
	default:
		return newFieldError("Database.Type", "仅支持 memory|postgres")
	}

	if c.Mirror.Enabled {
		if err := validateUpstream(c.Mirror.Upstream); err != nil {
			return fmt.Errorf("Mirror.Upstream: %w", err)
		}
		if c.Mirror.PackageDownloadTimeout.DurationValue() <= 0 {
			return newFieldError("Mirror.PackageDownloadTimeout", "必须大于 0")
		}
	}

	for i, pattern := range c.LicenseFilter.BlockedPatterns {
		if strings.TrimSpace(pattern) == "" {
			return newFieldError(patternField(i), "不能为空，空模式会匹配所有许可证")
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
