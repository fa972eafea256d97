package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/nuget-hub/internal/nuget"
	"github.com/any-hub/nuget-hub/internal/version"
)

const (
	defaultDownloadTimeout = 10 * time.Minute
	maxBackoff             = 30 * time.Second
)

// ClientConfig 描述上游 flat-container 源及重试策略。
type ClientConfig struct {
	Upstream        string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
}

// Client 访问 NuGet v3 flat-container 接口。
type Client struct {
	base           *url.URL
	metadata       *http.Client
	download       *http.Client
	maxRetries     int
	initialBackoff time.Duration
	logger         logrus.FieldLogger
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient 构建上游客户端，元数据与包下载共用同一个 transport，但超时各自独立。
func NewClient(cfg ClientConfig, logger logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.Upstream), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream must be http or https: %q", cfg.Upstream)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("upstream host required: %q", cfg.Upstream)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	transport := defaultTransport.Clone()
	return &Client{
		base:           base,
		metadata:       NewUpstreamClient(cfg.Timeout, transport),
		download:       NewUpstreamClient(downloadTimeout, transport),
		maxRetries:     maxRetries,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
		sleep:          sleepContext,
	}, nil
}

// Upstream 返回上游根地址。
func (c *Client) Upstream() string {
	return c.base.String()
}

// ListVersions 读取 {upstream}/{id}/index.json。上游不认识该 ID 时返回空列表。
func (c *Client) ListVersions(ctx context.Context, id string) ([]string, error) {
	target := c.resolve(nuget.IDKey(id), "index.json")

	resp, err := c.get(ctx, c.metadata, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamStatusError{URL: target, StatusCode: resp.StatusCode}
	}

	var payload struct {
		Versions []string `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode version index: %w", err)
	}
	return payload.Versions, nil
}

// DownloadPackage 下载 {upstream}/{id}/{version}/{id}.{version}.nupkg，调用方负责关闭返回的流。
func (c *Client) DownloadPackage(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, error) {
	lowerID := nuget.IDKey(id)
	lowerVersion := version.Key()
	target := c.resolve(lowerID, lowerVersion, lowerID+"."+lowerVersion+".nupkg")

	resp, err := c.get(ctx, c.download, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrPackageNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &UpstreamStatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) resolve(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(escaped, "/")
	u.RawPath = ""
	return u.String()
}

// get 对瞬时失败（网络错误、5xx、429）按指数退避重试，最多 maxRetries 次。
func (c *Client) get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	backoff := c.initialBackoff
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build upstream request: %w", err)
		}
		req.Header.Set("User-Agent", version.UserAgent())

		resp, err := client.Do(req)
		retryable := false
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			retryable = true
		case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
			retryable = true
		}

		if !retryable {
			return resp, nil
		}
		if attempt >= c.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("upstream request %s: %w", target, err)
			}
			return resp, nil
		}

		fields := logrus.Fields{
			"action":   "mirror_retry",
			"upstream": target,
			"attempt":  attempt + 1,
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["upstream_status"] = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		c.logger.WithFields(fields).Warn("mirror_upstream_retry")

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return 0
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isUpstreamMiss 判断错误是否表示上游不存在。
func isUpstreamMiss(err error) bool {
	return errors.Is(err, ErrPackageNotFound)
}
