package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

const packagesPrefix = "packages"

// Artifact 表示一个包版本下的单个文件类型。
type Artifact int

const (
	ArtifactContent Artifact = iota
	ArtifactManifest
	ArtifactReadme
	ArtifactIcon
)

// String 返回 artifact 名称，用于日志。
func (a Artifact) String() string {
	switch a {
	case ArtifactContent:
		return "content"
	case ArtifactManifest:
		return "manifest"
	case ArtifactReadme:
		return "readme"
	case ArtifactIcon:
		return "icon"
	default:
		return "unknown"
	}
}

func (a Artifact) contentType() string {
	switch a {
	case ArtifactContent:
		return "application/octet-stream"
	case ArtifactManifest:
		return "text/xml"
	case ArtifactReadme:
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}

// PackageArtifacts 是镜像一次写入的全部文件；Readme 与 Icon 可为空。
type PackageArtifacts struct {
	Content  io.Reader
	Manifest io.Reader
	Readme   io.Reader
	Icon     io.Reader
}

// PackageStorage 将包身份映射到 Store 中的 key。
type PackageStorage struct {
	store Store
}

// NewPackageStorage 包装一个 Store。
func NewPackageStorage(store Store) *PackageStorage {
	return &PackageStorage{store: store}
}

// ArtifactKey 返回指定 artifact 的存储 key，id 与版本均小写。
func ArtifactKey(id string, version nuget.Version, artifact Artifact) string {
	lowerID := nuget.IDKey(id)
	lowerVersion := version.Key()
	dir := packagesPrefix + "/" + lowerID + "/" + lowerVersion
	switch artifact {
	case ArtifactContent:
		return dir + "/" + lowerID + "." + lowerVersion + ".nupkg"
	case ArtifactManifest:
		return dir + "/" + lowerID + ".nuspec"
	case ArtifactReadme:
		return dir + "/readme"
	case ArtifactIcon:
		return dir + "/icon"
	default:
		return dir + "/" + strings.ToLower(artifact.String())
	}
}

// OpenContentStream 打开 .nupkg 文件。
func (p *PackageStorage) OpenContentStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return p.open(ctx, id, version, ArtifactContent)
}

// OpenManifestStream 打开 .nuspec 文件。
func (p *PackageStorage) OpenManifestStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return p.open(ctx, id, version, ArtifactManifest)
}

// OpenReadmeStream 打开 readme 文件。
func (p *PackageStorage) OpenReadmeStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return p.open(ctx, id, version, ArtifactReadme)
}

// OpenIconStream 打开内嵌图标。
func (p *PackageStorage) OpenIconStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return p.open(ctx, id, version, ArtifactIcon)
}

func (p *PackageStorage) open(ctx context.Context, id string, version nuget.Version, artifact Artifact) (io.ReadCloser, bool, error) {
	rc, err := p.store.Get(ctx, ArtifactKey(id, version, artifact))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open %s: %w", artifact, err)
	}
	return rc, true, nil
}

// SavePackage 写入一个包版本的全部文件。任一写入失败时删除已写入的文件。
func (p *PackageStorage) SavePackage(ctx context.Context, id string, version nuget.Version, artifacts PackageArtifacts) error {
	if artifacts.Content == nil || artifacts.Manifest == nil {
		return errors.New("package content and manifest required")
	}

	parts := []struct {
		artifact Artifact
		body     io.Reader
	}{
		{ArtifactManifest, artifacts.Manifest},
		{ArtifactReadme, artifacts.Readme},
		{ArtifactIcon, artifacts.Icon},
		{ArtifactContent, artifacts.Content},
	}

	var written []string
	for _, part := range parts {
		if part.body == nil {
			continue
		}
		key := ArtifactKey(id, version, part.artifact)
		if _, err := p.store.Put(ctx, key, part.body, PutOptions{ContentType: part.artifact.contentType()}); err != nil {
			for _, k := range written {
				_ = p.store.Remove(context.WithoutCancel(ctx), k)
			}
			return fmt.Errorf("save %s: %w", part.artifact, err)
		}
		written = append(written, key)
	}
	return nil
}

// DeletePackage 删除一个包版本的全部文件。
func (p *PackageStorage) DeletePackage(ctx context.Context, id string, version nuget.Version) error {
	for _, artifact := range []Artifact{ArtifactContent, ArtifactManifest, ArtifactReadme, ArtifactIcon} {
		if err := p.store.Remove(ctx, ArtifactKey(id, version, artifact)); err != nil {
			return fmt.Errorf("remove %s: %w", artifact, err)
		}
	}
	return nil
}
