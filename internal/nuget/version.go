package nuget

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion 表示版本号无法按 NuGet 语义化版本解析。
var ErrInvalidVersion = errors.New("invalid package version")

// legacyVersionPattern 匹配 NuGet 2.x 遗留的四段式版本号（major.minor.patch.revision）。
var legacyVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)\.(\d+)([-+].*)?$`)

// Version 是 NuGet 语义化版本：semver 三段 + 可选的 revision 段。零值表示“未设置”。
type Version struct {
	sv       *semver.Version
	revision uint64
}

// ParseVersion 解析上游或请求路径中的版本字符串。
func ParseVersion(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] == 'v' || trimmed[0] == 'V' {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}

	var revision uint64
	if m := legacyVersionPattern.FindStringSubmatch(trimmed); m != nil {
		rev, err := strconv.ParseUint(m[4], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
		}
		revision = rev
		trimmed = m[1] + "." + m[2] + "." + m[3] + m[5]
	}

	sv, err := semver.NewVersion(trimmed)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, raw, err)
	}
	return Version{sv: sv, revision: revision}, nil
}

// MustParseVersion 在解析失败时 panic，仅用于测试与常量。
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero 报告版本是否未设置。
func (v Version) IsZero() bool {
	return v.sv == nil
}

// IsPrerelease 报告是否为预发布版本。
func (v Version) IsPrerelease() bool {
	return v.sv != nil && v.sv.Prerelease() != ""
}

// NormalizedString 输出 NuGet 规范化形式：去掉构建元数据，revision 为 0 时省略第四段，
// 预发布标签保留原始大小写。
func (v Version) NormalizedString() string {
	if v.sv == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.sv.Major(), v.sv.Minor(), v.sv.Patch())
	if v.revision > 0 {
		fmt.Fprintf(&b, ".%d", v.revision)
	}
	if pre := v.sv.Prerelease(); pre != "" {
		b.WriteString("-")
		b.WriteString(pre)
	}
	return b.String()
}

// String 与 NormalizedString 一致。
func (v Version) String() string {
	return v.NormalizedString()
}

// Key 返回小写的规范化版本，用作索引与存储路径的键。
func (v Version) Key() string {
	return strings.ToLower(v.NormalizedString())
}

// Equal 按 NuGet 规则比较：忽略预发布标签大小写与构建元数据。
func (v Version) Equal(other Version) bool {
	return v.Key() == other.Key()
}
