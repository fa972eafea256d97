package license

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// Config 是许可证过滤配置，启动时加载一次。
type Config struct {
	Enabled         bool
	BlockedPatterns []string
}

// Classifier 持有编译后的黑名单，构造后不可变。
type Classifier struct {
	enabled  bool
	patterns []*regexp.Regexp
	logger   logrus.FieldLogger
}

// New 编译全部黑名单模式；任一模式非法即返回错误，调用方应在启动阶段终止。
// logger 可为 nil，仅用于记录无法解析的清单。
func New(cfg Config, logger logrus.FieldLogger) (*Classifier, error) {
	compiled := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for i, pattern := range cfg.BlockedPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile blocked pattern #%d %q: %w", i, pattern, err)
		}
		compiled = append(compiled, re)
	}

	return &Classifier{
		enabled:  cfg.Enabled,
		patterns: compiled,
		logger:   logger,
	}, nil
}

// Enabled 报告过滤是否开启。
func (c *Classifier) Enabled() bool {
	return c.enabled
}

// PatternCount 返回编译后的模式数量，等于配置中的模式数量。
func (c *Classifier) PatternCount() int {
	return len(c.patterns)
}

// IsRestrictedURL 判断许可证 URL 的绝对字符串形式是否命中黑名单。
func (c *Classifier) IsRestrictedURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return c.matches(u.String())
}

// IsRestrictedExpression 判断许可证表达式原文是否命中黑名单。空表达式直接视为未受限。
func (c *Classifier) IsRestrictedExpression(expression string) bool {
	return c.matches(expression)
}

// IsRestricted 任一信号命中即视为受限。
func (c *Classifier) IsRestricted(u *url.URL, expression string) bool {
	return c.IsRestrictedURL(u) || c.IsRestrictedExpression(expression)
}

// IsRestrictedFromNuspec 读取清单并分类：存在 type="expression" 的 <license> 时只看表达式，
// 结果为 false 也不再回退到 <licenseUrl>；否则使用 <licenseUrl>；都没有则未受限。
// 任何读取或解析错误都按未受限处理。
func (c *Classifier) IsRestrictedFromNuspec(r io.Reader) bool {
	if !c.Active() {
		return false
	}

	spec, err := nuget.ParseNuspec(r)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).WithField("action", "license_check").Warn("nuspec_unreadable")
		}
		return false
	}

	if expression, ok := spec.LicenseExpression(); ok {
		return c.IsRestrictedExpression(expression)
	}
	if u, ok := spec.LicenseURLValue(); ok {
		return c.IsRestrictedURL(u)
	}
	return false
}

// Active 报告分类器是否会判定任何包为受限：需启用且至少有一条规则。
func (c *Classifier) Active() bool {
	return c != nil && c.enabled && len(c.patterns) > 0
}

func (c *Classifier) matches(subject string) bool {
	if !c.Active() || strings.TrimSpace(subject) == "" {
		return false
	}
	for _, re := range c.patterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}
