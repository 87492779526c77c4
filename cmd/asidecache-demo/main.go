package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/asidecache"
	"github.com/unkn0wn-root/asidecache/config"
	asynchook "github.com/unkn0wn-root/asidecache/hooks/async"
	promhooks "github.com/unkn0wn-root/asidecache/hooks/prometheus"
	zaplog "github.com/unkn0wn-root/asidecache/log/zap"
	rp "github.com/unkn0wn-root/asidecache/provider/redis"
)

type Product struct {
	SKU   string `json:"sku" msgpack:"sku" cbor:"sku"`
	Price int64  `json:"price" msgpack:"price" cbor:"price"`
}

type Catalog struct {
	Version int      `json:"version" msgpack:"version" cbor:"version"`
	SKUs    []string `json:"skus" msgpack:"skus" cbor:"skus"`
}

func main() {
	cfgPath := flag.String("config", "asidecache.yaml", "path to the YAML config")
	metricsAddr := flag.String("metrics", ":9102", "address serving /metrics")
	flag.Parse()

	zl, _ := zap.NewProduction()
	defer zl.Sync()
	log := zaplog.New(zl)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	hooks := asynchook.New(promhooks.New(reg, "asidecache"), 1, 1024)
	defer hooks.Close()

	store, err := rp.New(rp.Config{Client: goredis.NewClient(cfg.RedisOptions()), CloseClient: true})
	if err != nil {
		zl.Fatal("redis store", zap.Error(err))
	}
	defer store.Close(context.Background())

	registry, err := asidecache.NewRegistry(cfg.TTL(),
		asidecache.Register[Product]("product", asidecache.Keyed),
		asidecache.Register[Catalog]("catalog", asidecache.Singleton),
	)
	if err != nil {
		zl.Fatal("registry", zap.Error(err))
	}

	local, err := asidecache.NewLocalRegions(registry, cfg.RegionFactory())
	if err != nil {
		zl.Fatal("fallback regions", zap.Error(err))
	}
	defer local.Close(context.Background())

	remote, err := asidecache.NewRepository(asidecache.RepositoryOptions{
		Name: "remote", Store: store, Registry: registry, Codec: cfg.Codec(), Logger: log, Hooks: hooks,
	})
	if err != nil {
		zl.Fatal("remote repository", zap.Error(err))
	}
	defer remote.Close()
	fallback, err := asidecache.NewRepository(asidecache.RepositoryOptions{
		Name: "fallback", Store: asidecache.NewFallbackStore(local), Registry: registry, Codec: cfg.Codec(), Logger: log, Hooks: hooks,
	})
	if err != nil {
		zl.Fatal("fallback repository", zap.Error(err))
	}
	defer fallback.Close()

	mopts := cfg.MonitorOptions(store, local)
	mopts.Logger, mopts.Hooks = log, hooks
	monitor, err := asidecache.NewMonitor(mopts)
	if err != nil {
		zl.Fatal("monitor", zap.Error(err))
	}
	monitor.Start(ctx)
	defer monitor.Close()

	loader, err := asidecache.NewLoader(asidecache.LoaderOptions{
		Remote:       remote,
		Fallback:     fallback,
		Liveness:     monitor,
		WriteWorkers: cfg.WriteBack.Workers,
		WriteQueue:   cfg.WriteBack.Queue,
		Logger:       log,
		Hooks:        hooks,
	})
	if err != nil {
		zl.Fatal("loader", zap.Error(err))
	}
	defer loader.Close()

	srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("metrics server", zap.Error(err))
		}
	}()
	defer srv.Shutdown(context.Background())

	catalog := func(context.Context) (Catalog, error) {
		return Catalog{Version: 1, SKUs: []string{"p1", "p2", "p3"}}, nil
	}
	prices := func(_ context.Context, skus []string) (map[string]Product, error) {
		out := make(map[string]Product, len(skus))
		for i, s := range skus {
			out[s] = Product{SKU: s, Price: int64(100 * (i + 1))}
		}
		return out, nil
	}

	zl.Info("demo running", zap.String("redis", cfg.Redis.Addr), zap.Bool("remote_alive", monitor.Alive()))
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			zl.Info("shutting down")
			return
		case <-t.C:
			c, err := asidecache.LoadOrFetch(ctx, loader, catalog)
			if err != nil {
				zl.Error("catalog", zap.Error(err))
				continue
			}
			ps, err := asidecache.LoadOrFetchMany(ctx, loader, c.SKUs, prices)
			if err != nil {
				zl.Error("products", zap.Error(err))
				continue
			}
			zl.Info("served",
				zap.Int("products", len(ps)),
				zap.String("backend", loader.Repository().Name()),
				zap.String("version", strconv.Itoa(c.Version)))
		}
	}
}
