// Package api 封装带凭证与自动刷新的 JSON 接口调用。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dnslin/tokenretry/core/httpclient"
)

// Client 在 httpclient 之上拼接基础地址、编码参数。
// 凭证写入与刷新由注入 httpclient 的中间件与重试策略完成。
type Client struct {
	http    *httpclient.Client
	logger  httpclient.Logger
	baseURL string
}

// Option 自定义客户端配置。
type Option func(*Client)

// WithHTTPClient 注入自定义 httpclient.Client。
func WithHTTPClient(cli *httpclient.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.http = cli
		}
	}
}

// WithLogger 注入日志接口。
func WithLogger(logger httpclient.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient 创建客户端。
func NewClient(baseURL string, opts ...Option) *Client {
	cli := &Client{
		http:    httpclient.NewClient(),
		logger:  httpclient.NopLogger{},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	if cli.http == nil {
		cli.http = httpclient.NewClient()
	}
	if cli.logger == nil {
		cli.logger = httpclient.NopLogger{}
	}
	return cli
}

// Get 发送 GET 请求，params 编码为 query。
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	u := joinURL(c.baseURL, path)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// PostJSON 发送 JSON 请求体，body 可重复读取以便重试。
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: 请求体编码失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.baseURL, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.http == nil {
		return &httpclient.NetworkError{Err: errors.New("api: httpclient 未初始化")}
	}
	if err := c.http.Do(req, out); err != nil {
		c.logger.Debugf("%s %s 失败: %v", req.Method, req.URL.Redacted(), err)
		return err
	}
	return nil
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	base = strings.TrimSuffix(base, "/")
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}
