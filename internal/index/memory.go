package index

import (
	"context"
	"sync"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// Memory 是进程内索引，重启后数据丢失。
type Memory struct {
	mu      sync.RWMutex
	records map[string]*nuget.Package
	order   map[string][]string
}

// NewMemory 创建空的内存索引。
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*nuget.Package),
		order:   make(map[string][]string),
	}
}

func (m *Memory) FindRecord(ctx context.Context, id string, version nuget.Version, includeUnlisted bool) (*nuget.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkg, ok := m.records[nuget.NewIdentity(id, version).Key()]
	if !ok || (!pkg.Listed && !includeUnlisted) {
		return nil, nil
	}
	return clonePackage(pkg), nil
}

func (m *Memory) Exists(ctx context.Context, id string, version nuget.Version) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.records[nuget.NewIdentity(id, version).Key()]
	return ok, nil
}

func (m *Memory) RecordDownload(ctx context.Context, id string, version nuget.Version) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pkg, ok := m.records[nuget.NewIdentity(id, version).Key()]
	if !ok {
		return false, nil
	}
	pkg.Downloads++
	return true, nil
}

func (m *Memory) FindVersions(ctx context.Context, id string, includeUnlisted bool) ([]nuget.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.order[nuget.IDKey(id)]
	versions := make([]nuget.Version, 0, len(keys))
	for _, key := range keys {
		pkg := m.records[key]
		if !pkg.Listed && !includeUnlisted {
			continue
		}
		versions = append(versions, pkg.Version)
	}
	return versions, nil
}

func (m *Memory) Add(ctx context.Context, pkg *nuget.Package) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateRecord(pkg); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pkg.Identity().Key()
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.records[key] = clonePackage(pkg)
	idKey := nuget.IDKey(pkg.ID)
	m.order[idKey] = append(m.order[idKey], key)
	return true, nil
}

// Unlist 修改记录的列出状态，记录不存在时返回 false。
func (m *Memory) Unlist(ctx context.Context, id string, version nuget.Version) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pkg, ok := m.records[nuget.NewIdentity(id, version).Key()]
	if !ok {
		return false, nil
	}
	pkg.Listed = false
	return true, nil
}

// Remove 删除记录，记录不存在时返回 false。
func (m *Memory) Remove(ctx context.Context, id string, version nuget.Version) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nuget.NewIdentity(id, version).Key()
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	idKey := nuget.IDKey(id)
	keys := m.order[idKey]
	for i, k := range keys {
		if k == key {
			m.order[idKey] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(m.order[idKey]) == 0 {
		delete(m.order, idKey)
	}
	return true, nil
}

func (m *Memory) Close() error { return nil }
