package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/nuget-hub/internal/logging"
	"github.com/any-hub/nuget-hub/internal/nuget"
	"github.com/any-hub/nuget-hub/internal/storage"
)

// Upstream 是上游源的最小能力集合，由 *Client 实现。
type Upstream interface {
	ListVersions(ctx context.Context, id string) ([]string, error)
	DownloadPackage(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, error)
}

// Index 是镜像需要的索引能力。
type Index interface {
	FindVersions(ctx context.Context, id string, includeUnlisted bool) ([]nuget.Version, error)
	Exists(ctx context.Context, id string, version nuget.Version) (bool, error)
	Add(ctx context.Context, pkg *nuget.Package) (bool, error)
}

// Storage 保存镜像得到的包文件，由 *storage.PackageStorage 实现。
type Storage interface {
	SavePackage(ctx context.Context, id string, version nuget.Version, artifacts storage.PackageArtifacts) error
}

// Service 实现读穿镜像。关闭时只返回本地数据，MirrorIfNeeded 为空操作。
type Service struct {
	enabled  bool
	upstream Upstream
	index    Index
	storage  Storage
	logger   *logrus.Logger
	tempDir  string
	timeout  time.Duration
	group    singleflight.Group
}

// defaultFetchTimeout 约束一次共享拉取的总时长。
const defaultFetchTimeout = 10 * time.Minute

// Option 调整 Service 的可选参数。
type Option func(*Service)

// WithTempDir 指定下载 .nupkg 时使用的临时目录。
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tempDir = dir }
}

// WithFetchTimeout 设置一次共享拉取（下载、解包、写入）的超时，<=0 时使用默认值。
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService 构建镜像服务；enabled 为 true 时 upstream 必须存在。
func NewService(enabled bool, upstream Upstream, index Index, store Storage, logger *logrus.Logger, opts ...Option) (*Service, error) {
	if index == nil {
		return nil, errors.New("mirror requires an index")
	}
	if store == nil {
		return nil, errors.New("mirror requires a storage")
	}
	if enabled && upstream == nil {
		return nil, errors.New("mirror enabled without upstream")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		enabled:  enabled,
		upstream: upstream,
		index:    index,
		storage:  store,
		logger:   logger,
		timeout:  defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enabled 报告是否开启了上游镜像。
func (s *Service) Enabled() bool {
	return s.enabled
}

// FindVersions 返回上游版本（保持上游顺序）与仅存在于本地的版本（保持写入顺序）的并集。
// 上游失败时退化为本地版本。
func (s *Service) FindVersions(ctx context.Context, id string) ([]nuget.Version, error) {
	local, err := s.index.FindVersions(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !s.enabled {
		return local, nil
	}

	remote, err := s.upstream.ListVersions(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fields := logging.PackageFields(id, "")
		fields["action"] = "mirror_versions"
		s.logger.WithFields(fields).WithError(err).Warn("mirror_versions_failed")
		return local, nil
	}

	seen := make(map[string]struct{}, len(remote)+len(local))
	merged := make([]nuget.Version, 0, len(remote)+len(local))
	for _, raw := range remote {
		v, err := nuget.ParseVersion(raw)
		if err != nil {
			s.logger.WithFields(logging.PackageFields(id, raw)).Debug("mirror_version_skipped")
			continue
		}
		if _, dup := seen[v.Key()]; dup {
			continue
		}
		seen[v.Key()] = struct{}{}
		merged = append(merged, v)
	}
	for _, v := range local {
		if _, dup := seen[v.Key()]; dup {
			continue
		}
		seen[v.Key()] = struct{}{}
		merged = append(merged, v)
	}
	return merged, nil
}

// MirrorIfNeeded 在本地不存在该包版本时从上游拉取。上游不存在为静默空操作；
// 其余失败记录日志后忽略，只有调用方的 context 结束时返回错误。
func (s *Service) MirrorIfNeeded(ctx context.Context, id string, version nuget.Version) error {
	if !s.enabled {
		return nil
	}

	exists, err := s.index.Exists(ctx, id, version)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// 共享拉取脱离发起者的取消信号，只受 fetch 超时约束；各调用方仍可独自放弃等待。
	identity := nuget.NewIdentity(id, version)
	resultCh := s.group.DoChan(identity.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return nil, s.mirror(fetchCtx, id, version)
	})

	var result singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result = <-resultCh:
	}

	if result.Err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	fields := logging.PackageFields(id, version.NormalizedString())
	fields["action"] = "mirror"
	if result.Shared {
		fields["shared"] = true
	}
	s.logger.WithFields(fields).WithError(result.Err).Warn("mirror_failed")
	return nil
}

func (s *Service) mirror(ctx context.Context, id string, version nuget.Version) error {
	started := time.Now()
	fields := logging.PackageFields(id, version.NormalizedString())
	fields["action"] = "mirror"

	body, err := s.upstream.DownloadPackage(ctx, id, version)
	if err != nil {
		if isUpstreamMiss(err) {
			s.logger.WithFields(fields).Debug("mirror_upstream_miss")
			return nil
		}
		return err
	}

	tmp, err := os.CreateTemp(s.tempDir, "nuget-hub-*.nupkg")
	if err != nil {
		body.Close()
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, body)
	body.Close()
	if err != nil {
		return fmt.Errorf("download package: %w", err)
	}

	extracted, err := extractPackage(tmp, size)
	if err != nil {
		return err
	}
	record := extracted.record
	if nuget.IDKey(record.ID) != nuget.IDKey(id) || !record.Version.Equal(version) {
		return fmt.Errorf("upstream package identity mismatch: requested %s, got %s",
			nuget.NewIdentity(id, version), record.Identity())
	}
	record.Published = time.Now().UTC()

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind package: %w", err)
	}
	artifacts := storage.PackageArtifacts{
		Content:  tmp,
		Manifest: bytes.NewReader(extracted.manifest),
	}
	if extracted.readme != nil {
		artifacts.Readme = bytes.NewReader(extracted.readme)
	}
	if extracted.icon != nil {
		artifacts.Icon = bytes.NewReader(extracted.icon)
	}
	if err := s.storage.SavePackage(ctx, record.ID, record.Version, artifacts); err != nil {
		return err
	}

	added, err := s.index.Add(ctx, record)
	if err != nil {
		return fmt.Errorf("index package: %w", err)
	}

	fields["size_bytes"] = size
	fields["added"] = added
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	s.logger.WithFields(fields).Info("mirror_completed")
	return nil
}
