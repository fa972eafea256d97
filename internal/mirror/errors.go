package mirror

import (
	"errors"
	"fmt"
)

// ErrPackageNotFound 表示上游不存在该包版本。
var ErrPackageNotFound = errors.New("package not found upstream")

// UpstreamStatusError 表示上游返回了非预期状态码。
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}
