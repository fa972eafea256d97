package nuget

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// LicenseTypeExpression 是 <license type="expression"> 的类型值。
const LicenseTypeExpression = "expression"

// ErrInvalidNuspec 表示清单缺少必要字段。
var ErrInvalidNuspec = errors.New("invalid nuspec")

// Nuspec 是解析后的包清单，只保留服务端关心的字段。
type Nuspec struct {
	ID          string
	Version     string
	Authors     string
	Description string
	Listed      bool
	License     *NuspecLicense
	LicenseURL  string
	Readme      string
	Icon        string
}

// NuspecLicense 对应 <license> 元素。
type NuspecLicense struct {
	Type    string
	Version string
	Value   string
}

// nuspecXML 只按本地名匹配元素，兼容 2010/07、2011/08、2013/05 等各版本命名空间。
type nuspecXML struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID          string `xml:"id"`
		Version     string `xml:"version"`
		Authors     string `xml:"authors"`
		Description string `xml:"description"`
		License     *struct {
			Type    string `xml:"type,attr"`
			Version string `xml:"version,attr"`
			Value   string `xml:",chardata"`
		} `xml:"license"`
		LicenseURL string `xml:"licenseUrl"`
		Readme     string `xml:"readme"`
		Icon       string `xml:"icon"`
	} `xml:"metadata"`
}

// ParseNuspec 从流中解析清单。读取失败或 XML 结构不合法时返回错误。
func ParseNuspec(r io.Reader) (*Nuspec, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidNuspec)
	}

	var doc nuspecXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode nuspec: %w", err)
	}

	meta := doc.Metadata
	spec := &Nuspec{
		ID:          strings.TrimSpace(meta.ID),
		Version:     strings.TrimSpace(meta.Version),
		Authors:     strings.TrimSpace(meta.Authors),
		Description: strings.TrimSpace(meta.Description),
		Listed:      true,
		LicenseURL:  strings.TrimSpace(meta.LicenseURL),
		Readme:      strings.TrimSpace(meta.Readme),
		Icon:        strings.TrimSpace(meta.Icon),
	}
	if meta.License != nil {
		spec.License = &NuspecLicense{
			Type:    strings.TrimSpace(meta.License.Type),
			Version: strings.TrimSpace(meta.License.Version),
			Value:   strings.TrimSpace(meta.License.Value),
		}
	}
	return spec, nil
}

// LicenseExpression 仅在 <license> 显式声明 type="expression" 时返回 ok=true，
// 值可能为空字符串。
func (n *Nuspec) LicenseExpression() (string, bool) {
	if n == nil || n.License == nil {
		return "", false
	}
	if !strings.EqualFold(n.License.Type, LicenseTypeExpression) {
		return "", false
	}
	return n.License.Value, true
}

// LicenseURLValue 解析遗留的 <licenseUrl>，只接受绝对 URL。
func (n *Nuspec) LicenseURLValue() (*url.URL, bool) {
	if n == nil || n.LicenseURL == "" {
		return nil, false
	}
	u, err := url.Parse(n.LicenseURL)
	if err != nil || !u.IsAbs() {
		return nil, false
	}
	return u, true
}

// Package 将清单转换为索引记录。ID 与版本号必须存在且合法。
func (n *Nuspec) Package() (*Package, error) {
	if n == nil || n.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidNuspec)
	}
	version, err := ParseVersion(n.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNuspec, err)
	}

	pkg := &Package{
		ID:              n.ID,
		Version:         version,
		Authors:         splitAuthors(n.Authors),
		Description:     n.Description,
		Listed:          n.Listed,
		HasReadme:       n.Readme != "",
		ReadmePath:      n.Readme,
		HasEmbeddedIcon: n.Icon != "",
		IconPath:        n.Icon,
	}
	if expr, ok := n.LicenseExpression(); ok {
		pkg.LicenseExpression = expr
	}
	if u, ok := n.LicenseURLValue(); ok {
		pkg.LicenseURL = u
	}
	return pkg, nil
}

func splitAuthors(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
