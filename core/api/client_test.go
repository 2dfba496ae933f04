package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnslin/tokenretry/core/auth"
	"github.com/dnslin/tokenretry/core/config"
	"github.com/dnslin/tokenretry/core/httpclient"
)

type profile struct {
	CodeResponse
	Name  string `json:"name"`
	Echo  string `json:"echo,omitempty"`
	Query string `json:"query,omitempty"`
}

// testServer 登录接口在 gate 关闭前阻塞，业务接口只接受 valid 中的凭证。
type testServer struct {
	mu     sync.Mutex
	valid  map[string]bool
	logins atomic.Int32
	gate   chan struct{}
	srv    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{valid: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/login", func(w http.ResponseWriter, r *http.Request) {
		n := ts.logins.Add(1)
		if ts.gate != nil {
			<-ts.gate
		}
		token := fmt.Sprintf("tok-%d", n)
		ts.mu.Lock()
		ts.valid[token] = true
		ts.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": token})
	})
	mux.HandleFunc("/v1/profile", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ok := ts.valid[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		ts.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"AccessTokenExpired","message":"expired"}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "name": "alice", "echo": string(body), "query": r.URL.RawQuery})
	})
	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.srv.Close)
	return ts
}

func testConfig(ts *testServer) config.Config {
	return config.Config{
		BaseURL:          ts.srv.URL,
		LoginURL:         ts.srv.URL + "/v1/login",
		RetryLimit:       2,
		MaxRetries:       3,
		RefreshTimeout:   5 * time.Second,
		CredentialHeader: "Authorization",
		CredentialPrefix: "Bearer ",
		Store:            config.StoreMemory,
		Concurrency:      1,
	}
}

func newTestClient(t *testing.T, ts *testServer, cfg config.Config) (*Client, *auth.Coordinator, *auth.SessionCredentials) {
	t.Helper()
	creds, closer, err := OpenCredentials(cfg)
	if err != nil {
		t.Fatalf("打开凭证存储失败: %v", err)
	}
	t.Cleanup(func() { _ = closer.Close() })
	if err := creds.SetIdentity(auth.Identity{Email: "a@b.c", Password: "p"}); err != nil {
		t.Fatalf("写入账号失败: %v", err)
	}
	if err := creds.SetCredential("stale"); err != nil {
		t.Fatalf("写入凭证失败: %v", err)
	}
	client, coord, err := Build(cfg, creds, nil, ts.srv.Client().Transport)
	if err != nil {
		t.Fatalf("组装客户端失败: %v", err)
	}
	return client, coord, creds
}

// TestConcurrentRequestsShareOneLogin 并发 401 只触发一次登录。
func TestConcurrentRequestsShareOneLogin(t *testing.T) {
	const n = 16
	ts := newTestServer(t)
	ts.gate = make(chan struct{})
	client, coord, creds := newTestClient(t, ts, testConfig(ts))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var out profile
			if err := client.Get(ctx, "/v1/profile", nil, &out); err != nil {
				return err
			}
			if out.Name != "alice" {
				return fmt.Errorf("响应不符: %+v", out)
			}
			return nil
		})
	}

	deadline := time.Now().Add(3 * time.Second)
	for coord.Pending() < n {
		if time.Now().After(deadline) {
			close(ts.gate)
			t.Fatalf("等待请求排队超时，pending=%d", coord.Pending())
		}
		time.Sleep(time.Millisecond)
	}
	close(ts.gate)

	if err := g.Wait(); err != nil {
		t.Fatalf("刷新后请求应全部成功: %v", err)
	}
	if got := ts.logins.Load(); got != 1 {
		t.Fatalf("应只登录一次，实际 %d 次", got)
	}
	if creds.GetCredential() != "tok-1" {
		t.Fatalf("凭证应更新为 tok-1，实际 %q", creds.GetCredential())
	}
}

// TestPostJSONReplaysBody 刷新后重发的请求体保持不变。
func TestPostJSONReplaysBody(t *testing.T) {
	ts := newTestServer(t)
	client, _, _ := newTestClient(t, ts, testConfig(ts))

	var out profile
	if err := client.PostJSON(context.Background(), "v1/profile", map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if out.Echo != `{"k":"v"}` {
		t.Fatalf("重发请求体不符: %q", out.Echo)
	}
}

func TestGetEncodesQuery(t *testing.T) {
	ts := newTestServer(t)
	client, _, _ := newTestClient(t, ts, testConfig(ts))

	var out profile
	if err := client.Get(context.Background(), "/v1/profile", url.Values{"page": {"2"}}, &out); err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if out.Query != "page=2" {
		t.Fatalf("query 不符: %q", out.Query)
	}
}

// TestSQLiteBackedCredentials 凭证通过 SQLite 持久化，重新打开后仍可读取。
func TestSQLiteBackedCredentials(t *testing.T) {
	ts := newTestServer(t)
	cfg := testConfig(ts)
	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "creds.db")
	client, _, _ := newTestClient(t, ts, cfg)

	if err := client.Get(context.Background(), "/v1/profile", nil, &profile{}); err != nil {
		t.Fatalf("请求失败: %v", err)
	}

	reopened, closer, err := OpenCredentials(cfg)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer closer.Close()
	if reopened.GetCredential() != "tok-1" {
		t.Fatalf("持久化凭证不符: %q", reopened.GetCredential())
	}
	if reopened.GetIdentity().Email != "a@b.c" {
		t.Fatalf("持久化账号不符: %+v", reopened.GetIdentity())
	}
}

func TestBusinessErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":"NoSuchCard","message":"missing"}`))
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, WithHTTPClient(httpclient.NewClient(httpclient.WithHTTPClient(srv.Client()))))

	err := client.Get(context.Background(), "/v1/cards/9", nil, &profile{})
	var ec *httpclient.ErrCode
	if !errors.As(err, &ec) || ec.Code != "NoSuchCard" {
		t.Fatalf("应返回业务错误，实际 %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("业务错误不应重试，请求 %d 次", hits.Load())
	}
}

func TestJoinURL(t *testing.T) {
	cases := map[[2]string]string{
		{"https://h/", "/a"}: "https://h/a",
		{"https://h", "a"}:   "https://h/a",
		{"https://h", ""}:    "https://h",
		{"", "/a"}:           "/a",
	}
	for in, want := range cases {
		if got := joinURL(in[0], in[1]); got != want {
			t.Fatalf("joinURL(%q, %q) = %q，期望 %q", in[0], in[1], got, want)
		}
	}
}
