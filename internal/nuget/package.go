package nuget

import (
	"net/url"
	"strings"
	"time"
)

// Identity 唯一标识一个包版本，ID 比较时不区分大小写。
type Identity struct {
	ID      string
	Version Version
}

// NewIdentity 构造包身份。
func NewIdentity(id string, version Version) Identity {
	return Identity{ID: id, Version: version}
}

// Key 返回 "<id 小写>/<规范化版本小写>"，同一包版本在不同大小写下得到相同的键。
func (i Identity) Key() string {
	return IDKey(i.ID) + "/" + i.Version.Key()
}

func (i Identity) String() string {
	return i.ID + " " + i.Version.NormalizedString()
}

// IDKey 将包 ID 规范化为小写形式。
func IDKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Package 是索引中保存的包版本记录。
type Package struct {
	ID          string
	Version     Version
	Authors     []string
	Description string
	Listed      bool

	LicenseURL        *url.URL
	LicenseExpression string

	HasReadme       bool
	ReadmePath      string
	HasEmbeddedIcon bool
	IconPath        string

	Downloads int64
	Published time.Time
}

// Identity 返回记录对应的包身份。
func (p *Package) Identity() Identity {
	return Identity{ID: p.ID, Version: p.Version}
}

// LicenseInfo 返回面向人阅读的许可证描述：优先许可证表达式，其次许可证 URL。
func (p *Package) LicenseInfo() string {
	if p == nil {
		return ""
	}
	if expr := strings.TrimSpace(p.LicenseExpression); expr != "" {
		return expr
	}
	if p.LicenseURL != nil {
		return p.LicenseURL.String()
	}
	return ""
}
