package mirror

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// maxEntrySize 限制从 .nupkg 中读入内存的单个条目大小（清单、readme、图标）。
const maxEntrySize = 32 << 20

// extractedPackage 是从 .nupkg 中取出的元数据与附属文件。
type extractedPackage struct {
	record   *nuget.Package
	manifest []byte
	readme   []byte
	icon     []byte
}

// extractPackage 读取 zip 根目录下的 .nuspec，并按清单声明取出 readme 与图标。
// 清单声明但包内缺失的 readme/图标会被视为不存在。
func extractPackage(r io.ReaderAt, size int64) (*extractedPackage, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open nupkg: %w", err)
	}

	var manifestFile *zip.File
	for _, f := range zr.File {
		name := normalizeEntryName(f.Name)
		if !strings.Contains(name, "/") && strings.HasSuffix(strings.ToLower(name), ".nuspec") {
			manifestFile = f
			break
		}
	}
	if manifestFile == nil {
		return nil, fmt.Errorf("%w: nupkg has no root nuspec", nuget.ErrInvalidNuspec)
	}

	manifest, err := readEntry(manifestFile)
	if err != nil {
		return nil, fmt.Errorf("read nuspec: %w", err)
	}
	spec, err := nuget.ParseNuspec(bytes.NewReader(manifest))
	if err != nil {
		return nil, err
	}
	record, err := spec.Package()
	if err != nil {
		return nil, err
	}

	out := &extractedPackage{record: record, manifest: manifest}
	if record.HasReadme {
		out.readme, err = readNamedEntry(zr, record.ReadmePath)
		if err != nil {
			return nil, fmt.Errorf("read readme: %w", err)
		}
		if out.readme == nil {
			record.HasReadme = false
		}
	}
	if record.HasEmbeddedIcon {
		out.icon, err = readNamedEntry(zr, record.IconPath)
		if err != nil {
			return nil, fmt.Errorf("read icon: %w", err)
		}
		if out.icon == nil {
			record.HasEmbeddedIcon = false
		}
	}
	return out, nil
}

// readNamedEntry 按清单中的相对路径查找条目，路径分隔符与大小写不敏感；未找到返回 nil。
func readNamedEntry(zr *zip.Reader, name string) ([]byte, error) {
	want := strings.ToLower(normalizeEntryName(name))
	if want == "" {
		return nil, nil
	}
	for _, f := range zr.File {
		if strings.ToLower(normalizeEntryName(f.Name)) == want {
			return readEntry(f)
		}
	}
	return nil, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, maxEntrySize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
}

func normalizeEntryName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	return name
}
