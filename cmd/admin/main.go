package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusconnect/backend/internal/config"
	"campusconnect/backend/internal/storage"

	"github.com/spf13/cobra"
)

const commandTimeout = 10 * time.Second

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator tools for the campusconnect realtime backend.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStorage connects to PostgreSQL and, when withRedis is set, Redis.
func openStorage(ctx context.Context, withRedis bool) (*storage.Service, func(), error) {
	db, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if !withRedis {
		return storage.NewStorageService(db, nil, nil), closeFn, nil
	}

	rdb, err := storage.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return storage.NewStorageService(db, rdb, nil), func() {
		rdb.Close()
		closeFn()
	}, nil
}
