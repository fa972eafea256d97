package content

import (
	"context"
	"io"
	"net/url"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// Mirror 负责读穿镜像。MirrorIfNeeded 必须幂等，在镜像关闭或包已在本地时为空操作。
type Mirror interface {
	FindVersions(ctx context.Context, id string) ([]nuget.Version, error)
	MirrorIfNeeded(ctx context.Context, id string, version nuget.Version) error
}

// Index 是包元数据索引。FindRecord 未找到时返回 nil 记录；RecordDownload 返回 false
// 表示记录在检查与计数之间消失。
type Index interface {
	FindRecord(ctx context.Context, id string, version nuget.Version, includeUnlisted bool) (*nuget.Package, error)
	Exists(ctx context.Context, id string, version nuget.Version) (bool, error)
	RecordDownload(ctx context.Context, id string, version nuget.Version) (bool, error)
}

// Storage 打开包的各类字节流，不存在时返回 found=false。
type Storage interface {
	OpenContentStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	OpenManifestStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	OpenReadmeStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	OpenIconStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
}

// Classifier 判断许可证是否受限，由 license.Classifier 实现。
type Classifier interface {
	Active() bool
	IsRestricted(licenseURL *url.URL, licenseExpression string) bool
	IsRestrictedFromNuspec(r io.Reader) bool
}
