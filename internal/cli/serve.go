package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pickup/internal/admission"
	"pickup/internal/auth"
	"pickup/internal/config"
	"pickup/internal/game"
	"pickup/internal/handlers"
	"pickup/internal/logging"
	"pickup/internal/notify"
	"pickup/internal/rotation"
	"pickup/internal/storage"
	"pickup/internal/tasks"
	"pickup/internal/vote"
	"pickup/internal/waitlist"
	"pickup/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the scheduler and the HTTP API",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return Serve(ctx, cfg, log)
		},
	}
}

// Serve wires every component and blocks until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.JWTAccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET is not set")
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	db, err := storage.ConnectDatabase(cfg, logging.Component(log, "gorm"))
	if err != nil {
		return err
	}
	if err := storage.Migrate(db); err != nil {
		return err
	}

	channel, err := admissionChannel(ctx, cfg, log)
	if err != nil {
		return err
	}

	hub := ws.NewHub(logging.Component(log, "ws"))
	go hub.Run(ctx)
	dispatcher := notify.NewDispatcher(hub, cfg.NotifyRatePerSec, cfg.NotifyBufferLength, logging.Component(log, "notify"))
	go dispatcher.Run(ctx)

	games := game.NewService(db, dispatcher, game.Options{
		ChannelID:  cfg.ChannelID,
		ReAddDelay: cfg.ReAddDelay,
	}, logging.Component(log, "game"))
	rot := rotation.NewController(db, dispatcher, rotation.Options{
		ChannelID: cfg.ChannelID,
		Random:    cfg.RandomMapRotation,
		Interval:  cfg.MapRotationPeriod,
	}, logging.Component(log, tasks.MapRotationJob))
	votes := vote.NewService(db, rot, dispatcher, vote.Options{
		ChannelID:  cfg.ChannelID,
		Threshold:  cfg.MapVoteThreshold,
		ReAddDelay: cfg.ReAddDelay,
	}, logging.Component(log, "vote"))

	processor := admission.NewProcessor(db, channel, games, dispatcher, admission.Options{
		ChannelID:      cfg.ChannelID,
		PopRandomQueue: cfg.PopRandomQueue,
	}, logging.Component(log, tasks.AddPlayerJob))
	waitlistLog := logging.Component(log, tasks.QueueWaitlistJob)
	gameWaitlists := waitlist.NewReconciler(db,
		waitlist.NewGameSource(waitlist.LogChannelDeleter{Log: waitlistLog}, waitlistLog),
		channel, games, waitlist.Options{}, waitlistLog)
	voteWaitlists := waitlist.NewReconciler(db, waitlist.VoteSource{}, channel, games,
		waitlist.Options{}, logging.Component(log, tasks.VotePassedWaitlistJob))
	reaper := tasks.NewReaper(db, dispatcher, tasks.ReaperOptions{
		ChannelID: cfg.ChannelID,
		AFKTime:   cfg.AFKTime,
	}, logging.Component(log, tasks.AFKTimerJob))

	scheduler := tasks.NewScheduler(logging.Component(log, "scheduler"))
	scheduler.Add(tasks.QueueWaitlistJob, cfg.TickInterval, gameWaitlists.Tick)
	scheduler.Add(tasks.VotePassedWaitlistJob, cfg.TickInterval, voteWaitlists.Tick)
	scheduler.Add(tasks.AddPlayerJob, cfg.TickInterval, processor.Tick)
	scheduler.Add(tasks.AFKTimerJob, cfg.SlowTickInterval, reaper.Tick)
	scheduler.Add(tasks.MapRotationJob, cfg.SlowTickInterval, rot.Tick)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.GET("/api/notifications/ws", hub.Handler(cfg.ChannelID))
	handlers.New(db, channel, scheduler, games, votes, rot, logging.Component(log, "http")).
		Register(r, auth.AuthMiddleware([]byte(cfg.JWTAccessSecret)))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			log.Error("http server failed", "error", err)
			stop()
			<-schedDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	stop()
	<-schedDone
	log.Info("shutdown complete")
	return nil
}

func admissionChannel(ctx context.Context, cfg config.Config, log *slog.Logger) (admission.Channel, error) {
	switch cfg.AdmissionBackend {
	case "redis":
		client, err := storage.InitRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("admission channel on redis", "addr", cfg.RedisAddr, "key", cfg.AdmissionRedisKey)
		return admission.NewRedisChannel(client, cfg.AdmissionRedisKey), nil
	default:
		return admission.NewMemoryChannel(), nil
	}
}
