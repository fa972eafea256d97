package mirror

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/nuget-hub/internal/index"
	"github.com/any-hub/nuget-hub/internal/logging"
	"github.com/any-hub/nuget-hub/internal/storage"
)

type nupkgOptions struct {
	id       string
	version  string
	license  string
	readme   string
	icon     string
	extra    map[string]string
	noNuspec bool
}

// buildNupkg 在内存中构造一个最小的 .nupkg。
func buildNupkg(t *testing.T, opts nupkgOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	if !opts.noNuspec {
		var meta strings.Builder
		fmt.Fprintf(&meta, "<id>%s</id><version>%s</version><authors>Alice, Bob</authors><description>test</description>", opts.id, opts.version)
		if opts.license != "" {
			fmt.Fprintf(&meta, `<license type="expression">%s</license>`, opts.license)
		}
		if opts.readme != "" {
			fmt.Fprintf(&meta, "<readme>%s</readme>", opts.readme)
		}
		if opts.icon != "" {
			fmt.Fprintf(&meta, "<icon>%s</icon>", opts.icon)
		}
		write(opts.id+".nuspec", `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd"><metadata>`+meta.String()+`</metadata></package>`)
	}
	for name, body := range opts.extra {
		write(name, body)
	}
	write("lib/net8.0/"+opts.id+".dll", "binary")
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakeFeed 是一个 flat-container 形式的上游桩。
type fakeFeed struct {
	mu        sync.Mutex
	versions  map[string][]string
	packages  map[string][]byte
	status    map[string][]int
	downloads atomic.Int32
	gate      chan struct{}
	requests  []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		versions: make(map[string][]string),
		packages: make(map[string][]byte),
		status:   make(map[string][]int),
	}
}

// failNext 让指定路径依次返回给定状态码，之后恢复正常。
func (f *fakeFeed) failNext(path string, codes ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = append(f.status[path], codes...)
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path)
	if codes := f.status[r.URL.Path]; len(codes) > 0 {
		f.status[r.URL.Path] = codes[1:]
		f.mu.Unlock()
		w.WriteHeader(codes[0])
		return
	}
	f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[2] == "index.json":
		f.mu.Lock()
		versions, ok := f.versions[parts[1]]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"versions":["%s"]}`, strings.Join(versions, `","`))
	case len(parts) == 4 && strings.HasSuffix(parts[3], ".nupkg"):
		f.downloads.Add(1)
		f.mu.Lock()
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		body, ok := f.packages[parts[1]+"/"+parts[2]]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	default:
		http.NotFound(w, r)
	}
}

// hold 让包下载阻塞，直到返回的 release 被调用。
func (f *fakeFeed) hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeFeed) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeFeed) addPackage(id, version string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(id)
	f.versions[key] = append(f.versions[key], version)
	f.packages[key+"/"+strings.ToLower(version)] = body
}

// newTestClient 启动上游桩并返回指向 /v3-flatcontainer 的客户端，重试不等待。
func newTestClient(t *testing.T, feed *fakeFeed, maxRetries int) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/v3-flatcontainer/", feed)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		Upstream:       srv.URL + "/v3-flatcontainer/",
		Timeout:        5 * time.Second,
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
	}, logging.Discard())
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return client
}

type testEnv struct {
	feed    *fakeFeed
	index   *index.Memory
	storage *storage.PackageStorage
	service *Service
}

func newTestEnv(t *testing.T, enabled bool, opts ...Option) *testEnv {
	t.Helper()
	feed := newFakeFeed()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	env := &testEnv{
		feed:    feed,
		index:   index.NewMemory(),
		storage: storage.NewPackageStorage(store),
	}
	var upstream Upstream
	if enabled {
		upstream = newTestClient(t, feed, 0)
	}
	env.service, err = NewService(enabled, upstream, env.index, env.storage, logging.Discard(), append([]Option{WithTempDir(t.TempDir())}, opts...)...)
	require.NoError(t, err)
	return env
}
