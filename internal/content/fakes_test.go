package content

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// recorder 记录协作者调用顺序，便于断言编排步骤。
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type ctxKey struct{}

// fakeMirror 在 MirrorIfNeeded 时把 pending 中的包“拉取”进 fakeIndex/fakeStorage，模拟读穿。
type fakeMirror struct {
	rec      *recorder
	index    *fakeIndex
	storage  *fakeStorage
	upstream []nuget.Version
	pending  map[string]pendingPackage
	err      error
	seenCtx  []context.Context
}

type pendingPackage struct {
	record   *nuget.Package
	artifact artifact
}

func (m *fakeMirror) FindVersions(ctx context.Context, id string) ([]nuget.Version, error) {
	m.rec.add("mirror.find_versions")
	m.seenCtx = append(m.seenCtx, ctx)
	if m.err != nil {
		return nil, m.err
	}
	return m.upstream, nil
}

func (m *fakeMirror) MirrorIfNeeded(ctx context.Context, id string, version nuget.Version) error {
	m.rec.add("mirror.mirror")
	m.seenCtx = append(m.seenCtx, ctx)
	if m.err != nil {
		return m.err
	}
	key := nuget.NewIdentity(id, version).Key()
	if p, ok := m.pending[key]; ok {
		m.index.put(p.record)
		m.storage.put(p.record.ID, p.record.Version, p.artifact)
		delete(m.pending, key)
	}
	return nil
}

type fakeIndex struct {
	rec       *recorder
	records   map[string]*nuget.Package
	vanish    bool
	err       error
	seenCtx   []context.Context
	downloads map[string]int
}

func newFakeIndex(rec *recorder) *fakeIndex {
	return &fakeIndex{rec: rec, records: map[string]*nuget.Package{}, downloads: map[string]int{}}
}

func (i *fakeIndex) put(p *nuget.Package) {
	i.records[p.Identity().Key()] = p
}

func (i *fakeIndex) FindRecord(ctx context.Context, id string, version nuget.Version, includeUnlisted bool) (*nuget.Package, error) {
	i.rec.add("index.find")
	i.seenCtx = append(i.seenCtx, ctx)
	if i.err != nil {
		return nil, i.err
	}
	p, ok := i.records[nuget.NewIdentity(id, version).Key()]
	if !ok || (!includeUnlisted && !p.Listed) {
		return nil, nil
	}
	return p, nil
}

func (i *fakeIndex) Exists(ctx context.Context, id string, version nuget.Version) (bool, error) {
	i.rec.add("index.exists")
	i.seenCtx = append(i.seenCtx, ctx)
	if i.err != nil {
		return false, i.err
	}
	_, ok := i.records[nuget.NewIdentity(id, version).Key()]
	return ok, nil
}

func (i *fakeIndex) RecordDownload(ctx context.Context, id string, version nuget.Version) (bool, error) {
	i.rec.add("index.record_download")
	i.seenCtx = append(i.seenCtx, ctx)
	if i.err != nil {
		return false, i.err
	}
	key := nuget.NewIdentity(id, version).Key()
	p, ok := i.records[key]
	if !ok || i.vanish {
		return false, nil
	}
	p.Downloads++
	i.downloads[key]++
	return true, nil
}

type artifact struct {
	content  []byte
	manifest []byte
	readme   []byte
	icon     []byte
}

type fakeStorage struct {
	rec       *recorder
	artifacts map[string]artifact
	err       error
	seenCtx   []context.Context
}

func newFakeStorage(rec *recorder) *fakeStorage {
	return &fakeStorage{rec: rec, artifacts: map[string]artifact{}}
}

func (s *fakeStorage) put(id string, version nuget.Version, a artifact) {
	s.artifacts[nuget.NewIdentity(id, version).Key()] = a
}

func (s *fakeStorage) open(ctx context.Context, event, id string, version nuget.Version, pick func(artifact) []byte) (io.ReadCloser, bool, error) {
	s.rec.add(event)
	s.seenCtx = append(s.seenCtx, ctx)
	if s.err != nil {
		return nil, false, s.err
	}
	a, ok := s.artifacts[nuget.NewIdentity(id, version).Key()]
	if !ok {
		return nil, false, nil
	}
	body := pick(a)
	if body == nil {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(body)), true, nil
}

func (s *fakeStorage) OpenContentStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return s.open(ctx, "storage.content", id, version, func(a artifact) []byte { return a.content })
}

func (s *fakeStorage) OpenManifestStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return s.open(ctx, "storage.manifest", id, version, func(a artifact) []byte { return a.manifest })
}

func (s *fakeStorage) OpenReadmeStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return s.open(ctx, "storage.readme", id, version, func(a artifact) []byte { return a.readme })
}

func (s *fakeStorage) OpenIconStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error) {
	return s.open(ctx, "storage.icon", id, version, func(a artifact) []byte { return a.icon })
}
