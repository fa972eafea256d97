package index

import (
	"context"
	"errors"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// ErrInvalidRecord 表示待写入记录缺少 ID 或版本。
var ErrInvalidRecord = errors.New("package record requires id and version")

// Index 是 content 与 mirror 共用的索引能力集合。
type Index interface {
	FindRecord(ctx context.Context, id string, version nuget.Version, includeUnlisted bool) (*nuget.Package, error)
	Exists(ctx context.Context, id string, version nuget.Version) (bool, error)
	RecordDownload(ctx context.Context, id string, version nuget.Version) (bool, error)
	// FindVersions 按写入顺序返回该 ID 下的版本。
	FindVersions(ctx context.Context, id string, includeUnlisted bool) ([]nuget.Version, error)
	// Add 写入新记录；同一包版本已存在时返回 false 且不覆盖。
	Add(ctx context.Context, pkg *nuget.Package) (bool, error)
	Close() error
}

func validateRecord(pkg *nuget.Package) error {
	if pkg == nil || nuget.IDKey(pkg.ID) == "" || pkg.Version.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

func clonePackage(pkg *nuget.Package) *nuget.Package {
	cp := *pkg
	if pkg.Authors != nil {
		cp.Authors = append([]string(nil), pkg.Authors...)
	}
	if pkg.LicenseURL != nil {
		u := *pkg.LicenseURL
		cp.LicenseURL = &u
	}
	return &cp
}
