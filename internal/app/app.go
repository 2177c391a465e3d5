package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AndreyMartjushev/takingPills/internal/config"
	"github.com/AndreyMartjushev/takingPills/internal/metrics"
	"github.com/AndreyMartjushev/takingPills/internal/scheduler"
	"github.com/AndreyMartjushev/takingPills/internal/store"
	"github.com/AndreyMartjushev/takingPills/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	return &App{cfg: cfg, log: log, bot: bot}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting takingPills bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("pollInterval", a.cfg.PollInterval),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, a.cfg.DatabaseDSN, a.cfg.DBPoolMin, a.cfg.DBPoolMax)
	if err != nil {
		a.log.Error("open postgres failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("postgres ready")

	a.router = telegram.NewRouter(a.bot, a.log, a.repo, telegram.Options{
		DefaultTZ:        a.cfg.DefaultTZ,
		DefaultRemindMin: a.cfg.RemindBeforeMin,
		LowStockDays:     a.cfg.LowStockDays,
		AdminChatID:      a.cfg.AdminChatID,
	})

	engine := scheduler.New(a.repo, a.log, a.router, scheduler.Options{
		PollInterval: a.cfg.PollInterval,
		SnoozeStep:   time.Duration(a.cfg.SnoozeMinutes) * time.Minute,
		MaxReminders: a.cfg.MaxReminders,
		SummaryHour:  a.cfg.SummaryHour,
		DefaultTZ:    a.cfg.DefaultTZ,
	})
	go engine.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := repo.Health(context.Background()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())
	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			a.bot.StopReceivingUpdates()
			if a.repo != nil {
				a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
