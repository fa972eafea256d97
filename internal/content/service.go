package content

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/nuget-hub/internal/license"
	"github.com/any-hub/nuget-hub/internal/logging"
	"github.com/any-hub/nuget-hub/internal/nuget"
)

// Service 是内容读取的编排入口，自身无可变状态，可被并发调用。
type Service struct {
	mirror     Mirror
	index      Index
	storage    Storage
	classifier Classifier
	logger     *logrus.Logger
}

// New 注入全部协作者，任一为 nil 都返回 MissingDependencyError。
func New(mirror Mirror, index Index, storage Storage, classifier Classifier, logger *logrus.Logger) (*Service, error) {
	switch {
	case mirror == nil:
		return nil, &MissingDependencyError{Name: "mirror"}
	case index == nil:
		return nil, &MissingDependencyError{Name: "index"}
	case storage == nil:
		return nil, &MissingDependencyError{Name: "storage"}
	case classifier == nil:
		return nil, &MissingDependencyError{Name: "classifier"}
	case logger == nil:
		return nil, &MissingDependencyError{Name: "logger"}
	}

	return &Service{
		mirror:     mirror,
		index:      index,
		storage:    storage,
		classifier: classifier,
		logger:     logger,
	}, nil
}

// GetPackageVersions 返回包的全部版本（规范化、小写），保持镜像返回的顺序。
func (s *Service) GetPackageVersions(ctx context.Context, id string) ([]string, bool, error) {
	versions, err := s.mirror.FindVersions(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if len(versions) == 0 {
		return nil, false, nil
	}

	result := make([]string, 0, len(versions))
	for _, v := range versions {
		result = append(result, strings.ToLower(v.NormalizedString()))
	}
	return result, true, nil
}

// GetPackageContentStream 返回 .nupkg 内容流。顺序：镜像 → 许可证 → 下载计数 → 打开流。
// 许可证受限时返回 *license.RestrictedLicenseError，且不计下载。
func (s *Service) GetPackageContentStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	if err := s.mirror.MirrorIfNeeded(ctx, id, version); err != nil {
		return nil, false, err
	}

	record, err := s.index.FindRecord(ctx, id, version, true)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, nil
	}

	restricted, err := s.isRestricted(ctx, id, version, record)
	if err != nil {
		return nil, false, err
	}
	if restricted {
		fields := logging.PackageFields(record.ID, record.Version.NormalizedString())
		fields["action"] = "license_check"
		fields["license"] = record.LicenseInfo()
		s.logger.WithFields(fields).Warn("license_restricted")
		return nil, false, license.NewRestrictedLicenseError(record.ID, record.Version.NormalizedString(), record.LicenseInfo())
	}

	counted, err := s.index.RecordDownload(ctx, id, version)
	if err != nil {
		return nil, false, err
	}
	if !counted {
		return nil, false, nil
	}

	return s.storage.OpenContentStream(ctx, id, version)
}

// GetPackageManifestStream 返回 .nuspec 清单流，不做许可证检查。
func (s *Service) GetPackageManifestStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	if err := s.mirror.MirrorIfNeeded(ctx, id, version); err != nil {
		return nil, false, err
	}

	exists, err := s.index.Exists(ctx, id, version)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	return s.storage.OpenManifestStream(ctx, id, version)
}

// GetPackageReadmeStream 返回 readme 流；包未声明 readme 时视为未找到。
func (s *Service) GetPackageReadmeStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	if err := s.mirror.MirrorIfNeeded(ctx, id, version); err != nil {
		return nil, false, err
	}

	record, err := s.index.FindRecord(ctx, id, version, true)
	if err != nil {
		return nil, false, err
	}
	if record == nil || !record.HasReadme {
		return nil, false, nil
	}

	return s.storage.OpenReadmeStream(ctx, id, version)
}

// GetPackageIconStream 返回内嵌图标流；包没有内嵌图标时视为未找到。
func (s *Service) GetPackageIconStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	if err := s.mirror.MirrorIfNeeded(ctx, id, version); err != nil {
		return nil, false, err
	}

	record, err := s.index.FindRecord(ctx, id, version, true)
	if err != nil {
		return nil, false, err
	}
	if record == nil || !record.HasEmbeddedIcon {
		return nil, false, nil
	}

	return s.storage.OpenIconStream(ctx, id, version)
}

// isRestricted 优先依据清单判断；清单不可得时退回索引记录中的许可证字段。
// 分类器未启用或没有规则时不打开清单。
func (s *Service) isRestricted(ctx context.Context, id string, version nuget.Version, record *nuget.Package) (bool, error) {
	if !s.classifier.Active() {
		return false, nil
	}
	manifest, found, err := s.storage.OpenManifestStream(ctx, id, version)
	if err != nil {
		return false, err
	}
	if found && manifest != nil {
		defer manifest.Close()
		return s.classifier.IsRestrictedFromNuspec(manifest), nil
	}
	return s.classifier.IsRestricted(record.LicenseURL, record.LicenseExpression), nil
}
