package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polygonid/verifier-node/internal/api"
	"github.com/polygonid/verifier-node/internal/buildinfo"
	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/health"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/storage"
	"github.com/polygonid/verifier-node/internal/theme"
	"github.com/polygonid/verifier-node/internal/verifier"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/cache"
	client "github.com/polygonid/verifier-node/pkg/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Info(context.Background(), "starting verifier node", "version", buildinfo.Version())

	cfg, err := config.Load()
	if err != nil {
		log.Error(context.Background(), "cannot load config", "err", err)
		os.Exit(1)
	}

	// Context with log
	ctx := log.NewContext(context.Background(), cfg.Log.Level, cfg.Log.Mode, os.Stdout)

	cachex, err := cache.NewCacheClient(ctx, cfg.Cache)
	if err != nil {
		log.Error(ctx, "cannot initialize cache", "err", err)
		os.Exit(1)
	}

	var ethClient *eth.Client
	if cfg.Ethereum.URL != "" {
		cc := cfg.Ethereum.ClientConfig()
		ethClient, err = eth.Dial(ctx, cfg.Ethereum.URL, &cc)
		if err != nil {
			log.Error(ctx, "cannot connect to ethereum node", "err", err, "url", cfg.Ethereum.URL)
			os.Exit(1)
		}
	}

	if _, err := storage.Init(ctx, cfg, storage.Deps{
		Cache:      cachex,
		EthClient:  ethClient,
		HTTPClient: client.DefaultHTTPClientWithRetry,
	}); err != nil {
		log.Error(ctx, "cannot initialize storage", "err", err)
		os.Exit(1)
	}

	requests, err := config.LoadProofRequests(cfg.ProofRequestsFile)
	if err != nil {
		log.Error(ctx, "cannot load proof requests", "err", err, "file", cfg.ProofRequestsFile)
		os.Exit(1)
	}

	themes, err := newThemeManager(ctx, cfg.Theme)
	if err != nil {
		log.Error(ctx, "cannot initialize theme", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           api.NewServer(requests, verifier.NewProvider(cfg), ethClient, themes, serverHealth(cachex, ethClient)).Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(ctx, "server started", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "starting http server", "err", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	log.Info(ctx, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "graceful shutdown", "err", err)
	}
}

func newThemeManager(ctx context.Context, cfg config.Theme) (*theme.Manager, error) {
	store := theme.NewStore(cfg.StorePath)
	if cfg.ToriiURL == "" {
		return theme.NewManager(store, nil, cfg.SwitchDelay)
	}
	log.Info(ctx, "theme mirrored to torii", "url", cfg.ToriiURL)
	return theme.NewManager(store, theme.NewRemote(cfg.ToriiURL, client.DefaultHTTPClientWithRetry), cfg.SwitchDelay)
}

func serverHealth(c cache.Cache, ethClient *eth.Client) *health.Status {
	pingers := map[string]health.Ping{
		health.Cache: health.PingFunc(func(ctx context.Context) error {
			return c.Set(ctx, "health", time.Now().Unix(), time.Minute)
		}),
		health.Storage: health.PingFunc(func(context.Context) error {
			_, err := storage.Instance()
			return err
		}),
	}
	if ethClient != nil {
		pingers[health.Ethereum] = health.PingFunc(func(ctx context.Context) error {
			_, err := ethClient.CurrentBlock(ctx)
			return err
		})
	}
	return health.New(pingers)
}
