package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// NewFileStore 以 basePath 为根目录构建磁盘存储，整站复用一份实例。
func NewFileStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{basePath: abs}, nil
}

// lockStripes 是写锁分段数。不同 key 落在同一段只会互相排队，不影响正确性。
const lockStripes = 64

// fileStore 按规范化后的相对路径分段加锁，避免同一文件被并发写入（例如两个请求同时镜像同一个包）。
type fileStore struct {
	basePath string
	locks    [lockStripes]sync.Mutex
}

// Get 直接返回打开的文件；key 指向目录时视为不存在。
func (s *fileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, _, err := s.entryPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Put 先写入同目录的临时文件再 rename，读者只会看到完整的旧文件或新文件。
func (s *fileStore) Put(ctx context.Context, key string, body io.Reader, _ PutOptions) (int64, error) {
	filePath, rel, err := s.entryPath(key)
	if err != nil {
		return 0, err
	}

	lock := s.lockFor(rel)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tempFile, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, err
	}
	tempName := tempFile.Name()

	written, err := io.Copy(tempFile, ctxReader{ctx: ctx, r: body})
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tempName, filePath)
	}
	if err != nil {
		os.Remove(tempName)
		return 0, err
	}
	return written, nil
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	filePath, rel, err := s.entryPath(key)
	if err != nil {
		return err
	}

	lock := s.lockFor(rel)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) lockFor(rel string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(rel))
	return &s.locks[h.Sum32()%lockStripes]
}

// entryPath 将 key 映射为 basePath 下的绝对路径及规范化的相对路径，拒绝越界路径。
func (s *fileStore) entryPath(key string) (string, string, error) {
	rel, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", "", ErrInvalidKey
	}
	return filePath, rel, nil
}

// cleanKey 规范化 key；包含 ".." 段或规范化后为空的 key 非法。
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel == "" {
		return "", ErrInvalidKey
	}
	return rel, nil
}

// ctxReader 在每次 Read 前检查 ctx，使 io.Copy 能在取消后尽快停止。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
