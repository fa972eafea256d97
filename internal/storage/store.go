package storage

import (
	"context"
	"errors"
	"io"
)

// Store 负责包文件的读写，key 为 "/" 分隔的相对路径。
type Store interface {
	// Get 打开条目正文。若不存在则返回 ErrNotFound。调用方负责关闭。
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put 写入条目并返回写入的字节数。写入需原子，失败时不留下半成品。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (int64, error)

	// Remove 删除条目，不存在时不报错。
	Remove(ctx context.Context, key string) error
}

// PutOptions 控制写入过程中的可选属性。ContentType 仅对象存储使用。
type PutOptions struct {
	ContentType string
}

var (
	// ErrNotFound 表示条目不存在。
	ErrNotFound = errors.New("storage entry not found")
	// ErrInvalidKey 表示 key 为空或试图越出存储根目录。
	ErrInvalidKey = errors.New("invalid storage key")
)
