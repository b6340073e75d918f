package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/loader"
	"github.com/aleksaelezovic/jsonld/pkg/server"
)

func runServe(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	srv, err := server.NewServer(cfg.ServerConfig(), env.opts, logger.Named("server"), env.metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persistent document cache (requires --cache-dir)",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached documents",
		Args:  cobra.NoArgs,
		RunE:  runCacheList,
	}, &cobra.Command{
		Use:   "purge",
		Short: "Remove expired documents",
		Args:  cobra.NoArgs,
		RunE:  runCachePurge,
	}, &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached document",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	})
	return cacheCmd
}

func openCache() (*loader.BadgerCache, error) {
	if cfg.Loader.CacheDir == "" {
		return nil, errors.New("no cache directory configured; pass --cache-dir")
	}
	return loader.OpenBadgerCache(cfg.Loader.CacheDir, logger.Named("cache"))
}

func runCacheList(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	entries, err := cache.Entries()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\n", e.URL, e.ContentType, e.Expires.Format(time.RFC3339))
	}
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	n, err := cache.Purge()
	if err != nil {
		return err
	}
	logger.Info("purged expired documents", zap.Int("count", n))
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired documents\n", n)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
	return nil
}
