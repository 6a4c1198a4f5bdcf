package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"ideasync/internal/config"
	"ideasync/internal/redis"
	"ideasync/internal/relay"
	"ideasync/internal/storage"
)

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	cfgPath := os.Getenv("IDEASYNC_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if cfgPath != "" || !errors.Is(err, fs.ErrNotExist) {
			glog.Fatalf("load config: %v", err)
		}
		glog.Warningf("no config.json found, using defaults")
		cfg = config.Default()
	}
	if os.Getenv("IDEASYNC_DEBUG") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dir relay.Directory
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			glog.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	if dbType := cfg.BasicConfig.Database; dbType != "" {
		glog.Infof("dbType: %s", dbType)
		db, err := storage.Open(ctx, dbType, cfg)
		if err != nil {
			glog.Fatalf("open database: %v", err)
		}
		defer db.Close()
		if err := storage.Migrate(ctx, db, dbType); err != nil {
			glog.Fatalf("migrate database: %v", err)
		}
		dir = relay.NewSQLDirectory(storage.NewSnapshotStore(db, dbType), rdb)
	}

	server := relay.NewServer(cfg, dir, relay.WithRedis(rdb))
	if err := server.Run(ctx); err != nil {
		glog.Fatalf("server stopped: %v", err)
	}
}
