// 凭证刷新探测入口：并发请求同一接口，观察刷新是否只发生一次。
//
// 用法: tokenprobe [path]，配置从 TOKENRETRY_* 环境变量读取。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnslin/tokenretry/core/api"
	"github.com/dnslin/tokenretry/core/auth"
	"github.com/dnslin/tokenretry/core/config"
	"github.com/dnslin/tokenretry/core/httpclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tokenprobe: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := httpclient.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	creds, closer, err := api.OpenCredentials(cfg)
	if err != nil {
		return fmt.Errorf("打开凭证存储: %w", err)
	}
	defer closer.Close()

	identity := auth.Identity{Email: cfg.Email, Password: cfg.Password, MembershipID: cfg.MembershipID}
	if identity.Complete() {
		if err := creds.SetIdentity(identity); err != nil {
			return fmt.Errorf("写入账号: %w", err)
		}
	}
	if !creds.GetIdentity().Complete() {
		return fmt.Errorf("缺少账号信息，请设置 TOKENRETRY_EMAIL 与 TOKENRETRY_PASSWORD")
	}

	client, coord, err := api.Build(cfg, creds, logger, nil)
	if err != nil {
		return err
	}

	path := "/"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 没有凭证时首个 401 会触发登录，其余请求等待同一次刷新。
	var failed atomic.Int32
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			var out api.CodeResponse
			if err := client.Get(gctx, path, nil, &out); err != nil {
				failed.Add(1)
				logger.Errorf("请求 #%d 失败: %v", i, err)
				return nil
			}
			logger.Debugf("请求 #%d 成功", i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := coord.Stats()
	fmt.Printf("requests=%d failed=%d refresh_cycles=%d succeeded=%d refresh_failed=%d elapsed=%s\n",
		cfg.Concurrency, failed.Load(), stats.Cycles, stats.Succeeded, stats.Failed, time.Since(start).Round(time.Millisecond))
	if failed.Load() > 0 {
		return fmt.Errorf("%d 个请求失败", failed.Load())
	}
	return nil
}
