package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cameronmore/go-admin-sessions/auth"
	"github.com/cameronmore/go-admin-sessions/config"
	"github.com/cameronmore/go-admin-sessions/logging"
	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	dotenvPath := flag.String("dotenv", "./.env", "path for the .env file holding secrets")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath, *dotenvPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	logCloser := logging.Setup(logging.Options{
		File:   cfg.LogsPath,
		Stdout: cfg.LogToStdout,
		Level:  cfg.LogLevel,
		JSON:   cfg.LogJSON,
	})
	defer logCloser.Close()
	log.Warnf("---->> running in [%s] environment, storage [%s]", cfg.Environment, cfg.Storage)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s storage: %s", cfg.Storage, err)
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.Errorf("close storage: %s", err)
		}
	}()

	authContext := auth.NewAuthContext(storage, sessions.UIFunc(func(isLoggedIn bool) {
		log.Debugf("admin ui: logged in = %t", isLoggedIn)
	}), cfg.SessionTTL.Duration)
	if err := authContext.Init(ctx); err != nil {
		log.Fatalf("init admin session: %s", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           authContext.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server: %s", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Warnln("shutting down ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %s", err)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (sessions.Storage, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Storage {
	case config.StorageFile:
		store, err := auth.NewFileStorage(afero.NewOsFs(), cfg.StorageFile)
		return store, noClose, err
	case config.StorageSQLite:
		store, err := auth.OpenSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoragePostgres:
		store, err := auth.OpenPostgresStorage(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		return auth.NewRedisStorage(client, cfg.RedisKeyPrefix), client.Close, nil
	default:
		return auth.NewMemoryStorage(), noClose, nil
	}
}
