package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/swingmate-app/challenge-engine/internal/announce"
	"github.com/swingmate-app/challenge-engine/internal/archive"
	"github.com/swingmate-app/challenge-engine/internal/arena"
	"github.com/swingmate-app/challenge-engine/internal/challenge"
	appcfg "github.com/swingmate-app/challenge-engine/internal/config"
	"github.com/swingmate-app/challenge-engine/internal/countdown"
	"github.com/swingmate-app/challenge-engine/internal/engine"
	"github.com/swingmate-app/challenge-engine/internal/mirror"
	"github.com/swingmate-app/challenge-engine/internal/msgcat"
	"github.com/swingmate-app/challenge-engine/internal/obslog"
	"github.com/swingmate-app/challenge-engine/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cred := arena.Anonymous()
	if cfg.AuthToken != "" {
		cred = arena.NewCredential(cfg.AuthToken)
	}

	api := arena.NewClient(cfg.ArenaBaseURL, cred)

	var sock *arena.Socket
	if cfg.ArenaWSURL != "" {
		var policy arena.ReconnectPolicy = arena.DefaultBackoff()
		if cfg.ReconnectPolicy == "fixed" {
			policy = arena.FixedDelay(cfg.ReconnectDelay)
		}
		sock = arena.NewSocket(cfg.ArenaWSURL, "challenges", cred, arena.WithReconnectPolicy(policy))
	}

	eng := engine.New(engine.Config{
		ViewerID:        cfg.ViewerID,
		ViewerName:      cfg.ViewerName,
		RefetchInterval: cfg.RefetchInterval,
	}, store.New(), api, sock, engine.WithEgress(arena.NewEgress(sock, false)))

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}
	sink := announce.Sink(func(string) {})
	if cfg.AnnounceStdout {
		sink = func(line string) { fmt.Println(line) }
	}
	ann := announce.New(cat, sink)

	var mir *mirror.Mirror
	if cfg.RedisURL != "" {
		mir, err = mirror.NewFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("mirror init error: %v", err)
		}
		defer mir.Close()
	}

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer repo.Close()
	}

	eng.OnSessionChange(func(snap *challenge.Session) {
		ann.OnSession(snap)
		if mir != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := mir.Save(ctx, snap); err != nil {
				obslog.L().Warn("mirror_save_failed", zap.String("challenge", snap.ID), zap.Error(err))
			}
			cancel()
		}
		if repo != nil && snap.State.Terminal() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := repo.SaveFinal(ctx, snap); err != nil {
				obslog.L().Warn("archive_save_failed", zap.String("challenge", snap.ID), zap.Error(err))
			}
			cancel()
		}
	})
	eng.OnCountdown(func(id string, r countdown.Remaining) {
		if snap := eng.Session(id); snap != nil {
			ann.OnCountdown(snap.Title, id, r)
		}
	})
	eng.OnConnState(ann.OnConnState)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Connect(ctx)
	obslog.L().Info("engine_started",
		zap.String("base_url", cfg.ArenaBaseURL),
		zap.Bool("live", sock != nil && !cred.Anonymous()),
	)

	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Close(shutCtx); err != nil {
		obslog.L().Warn("shutdown_incomplete", zap.Error(err))
		os.Exit(1)
	}
	obslog.L().Info("engine_stopped")
}
