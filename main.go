package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pricecomp/internal/config"
	"pricecomp/internal/llm"
	"pricecomp/internal/pipeline"
	"pricecomp/internal/serpapi"
	"pricecomp/internal/server"
	"pricecomp/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	// Settings encryption passphrase (required)
	secretKey := os.Getenv("PRICECOMP_SECRET_KEY")
	if secretKey == "" {
		log.Fatal().Msg("PRICECOMP_SECRET_KEY is not set")
	}
	encryptionKey, err := storage.DeriveKey(secretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	// Database path (optional, defaults to pricecomp.db)
	dbPath := os.Getenv("PRICECOMP_DB_PATH")
	if dbPath == "" {
		dbPath = "pricecomp.db"
	}

	addr := os.Getenv("PRICECOMP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	store, err := storage.NewSQLiteStore(dbPath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()
	log.Info().Str("dbPath", dbPath).Msg("store initialized")

	source := serpapi.NewClient(serpapi.ClientOpts{})

	p := pipeline.New(source, store, func(ctx context.Context, provider, apiKey string) (pipeline.Analyzer, error) {
		prov, err := llm.NewProvider(ctx, provider, apiKey)
		if err != nil {
			return nil, err
		}
		return llm.NewAnalyzer(prov), nil
	})

	srv := server.New(p, store)

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, addr)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
