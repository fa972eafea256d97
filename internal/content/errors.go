package content

import "fmt"

// MissingDependencyError 表示构造 Service 时缺少必需的协作者。
type MissingDependencyError struct {
	Name string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("content: missing dependency %s", e.Name)
}
