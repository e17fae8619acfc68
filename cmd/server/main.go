package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forumsync/internal/config"
	"forumsync/internal/db"
	"forumsync/internal/realtime"
	"forumsync/internal/router"
	"forumsync/internal/services"
	"forumsync/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := config.Load()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Initialize Database
	conn, err := db.Open(db.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseURL, Debug: cfg.SQLDebug})
	if err != nil {
		glog.Exitf("failed to open database: %v", err)
	}

	pages, err := utils.NewCache[services.PostPage](cfg.ListCacheSize, cfg.ListCacheTTL)
	if err != nil {
		glog.Exitf("failed to create list cache: %v", err)
	}

	hub := realtime.NewHub(cfg.AllowOrigins, cfg.SendBuffer)
	forum := services.NewForumService(conn, hub, pages)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(router.Options{
			AllowOrigins: cfg.AllowOrigins,
			Forum:        forum,
			Events:       hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		glog.Infof("forum server starting on :%s (db=%s)", cfg.Port, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Exitf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	glog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// websocket 连接被 hijack，Shutdown 不会等它们
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
