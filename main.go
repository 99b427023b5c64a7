package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/wordle/apps/area-server/assets"
	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/config"
	"github.com/robalobadob/wordle/apps/area-server/internal/httpserver"
	"github.com/robalobadob/wordle/apps/area-server/internal/hub"
	"github.com/robalobadob/wordle/apps/area-server/internal/relay"
	"github.com/robalobadob/wordle/apps/area-server/internal/results"
	"github.com/robalobadob/wordle/apps/area-server/internal/store"
	"github.com/robalobadob/wordle/apps/area-server/internal/words"
)

func main() {
	cfg := config.Load()
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if !cfg.Production {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := results.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer db.Close()
	if err := results.Migrate(db, assets.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	corpus := words.New()
	h := hub.New()
	var emitter area.Emitter = h
	var claims httpserver.Claims

	g, ctx := errgroup.WithContext(ctx)

	// Area creation waits on the corpus, so the server can start listening
	// while the lists load.
	g.Go(func() error {
		src := words.Source{AllFile: cfg.WordsAllFile, PoolFile: cfg.WordsPoolFile}
		if err := corpus.Load(ctx, src); err != nil {
			return err
		}
		all, pool := corpus.Stats()
		log.Info().Int("all", all).Int("pool", pool).Msg("word lists loaded")
		return nil
	})

	if cfg.RedisAddr != "" {
		rdb, err := relay.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		rl := relay.New(rdb, cfg.RedisChannel)
		emitter = area.Emitters{h, rl}
		claims = rl
		g.Go(func() error { return rl.Run(ctx) })
		g.Go(func() error { return rl.Listen(ctx, h) })
	}

	srv, err := httpserver.New(httpserver.Deps{
		Config:  cfg,
		Store:   store.NewMemoryStore(),
		Corpus:  corpus,
		Hub:     h,
		Emitter: emitter,
		Results: results.NewStore(db),
		Claims:  claims,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("configure server")
	}

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("starting area-server")
		return srv.Start(ctx, addr)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}
