package api

import (
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/dnslin/tokenretry/core/auth"
	"github.com/dnslin/tokenretry/core/config"
	"github.com/dnslin/tokenretry/core/httpclient"
	"github.com/dnslin/tokenretry/core/store"
	"github.com/dnslin/tokenretry/core/store/redisstore"
	"github.com/dnslin/tokenretry/core/store/sqlitestore"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenCredentials 按配置打开凭证存储，返回的 Closer 负责释放底层连接。
func OpenCredentials(cfg config.Config) (*auth.SessionCredentials, io.Closer, error) {
	var (
		backend store.SessionStore[auth.Session]
		closer  io.Closer = nopCloser{}
	)
	switch cfg.Store {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s, err := redisstore.New[auth.Session](rdb, cfg.RedisKey, redisstore.WithTTL(cfg.RedisTTL))
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		backend, closer = s, rdb
	case config.StoreSQLite:
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlitestore.NewStore[auth.Session](db, "default")
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		backend, closer = s, db
	default:
		backend = store.NewMemoryStore[auth.Session]()
	}
	creds, err := auth.NewSessionCredentials(backend)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return creds, closer, nil
}

// Build 组装带凭证写入与单次刷新协调的客户端。
// 登录请求与业务请求共用同一个 httpclient，登录地址本身不会触发刷新。
func Build(cfg config.Config, creds auth.CredentialStore, logger httpclient.Logger, transport http.RoundTripper) (*Client, *auth.Coordinator, error) {
	if logger == nil {
		logger = httpclient.NopLogger{}
	}
	opts := []httpclient.Option{
		httpclient.WithLogger(logger),
		httpclient.WithMiddlewares(httpclient.WithRequestID()),
	}
	if transport != nil {
		opts = append(opts, httpclient.WithHTTPClient(&http.Client{Transport: transport}))
	}
	if cfg.RateQPS > 0 {
		opts = append(opts, httpclient.WithRateLimiter(httpclient.NewTokenBucketLimiter(cfg.RateQPS, cfg.RateBurst, nil)))
	}
	hc := httpclient.NewClient(opts...)

	login := auth.NewLoginClient(hc, auth.WithLoginURL(cfg.LoginURL), auth.WithLoginLogger(logger))
	coord, err := auth.NewCoordinator(creds, auth.StoreStatus{Store: creds}, auth.NewLoginRefresher(login), login.URL(),
		auth.WithRetryLimit(cfg.RetryLimit),
		auth.WithRefreshTimeout(cfg.RefreshTimeout),
		auth.WithCredentialHeader(cfg.CredentialHeader, cfg.CredentialPrefix),
		auth.WithCoordinatorLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	hc.Use(coord.Middleware())

	retryCfg := httpclient.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	retryCfg.Auth = coord
	retryCfg.Logger = logger
	hc.Retry = httpclient.NewExponentialBackoffRetry(retryCfg)

	return NewClient(cfg.BaseURL, WithHTTPClient(hc), WithLogger(logger)), coord, nil
}
