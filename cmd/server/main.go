package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/config"
	"github.com/iliyamo/cinema-ticket-booking/internal/database"
	"github.com/iliyamo/cinema-ticket-booking/internal/handler"
	"github.com/iliyamo/cinema-ticket-booking/internal/logger"
	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
	"github.com/iliyamo/cinema-ticket-booking/internal/router"
	"github.com/iliyamo/cinema-ticket-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	users := repository.NewUserRepo(db)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal("admin bootstrap failed", zap.Error(err))
		}
		if created {
			log.Info("bootstrap admin created", zap.String("email", cfg.AdminEmail))
		}
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	publisher := service.NewPublisher(cfg.AMQPURL, log)
	defer publisher.Close()

	consumer := queue.NewConsumer(cfg.AMQPURL, "logs", log)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped", zap.Error(err))
		}
	}()

	th := booking.Thresholds{VIP: cfg.VIPThreshold, Premium: cfg.PremiumThreshold}
	orders := repository.NewOrderRepo(db)
	showtimes := repository.NewShowtimeRepo(db)
	movies := repository.NewMovieRepo(db)
	seats := repository.NewSeatRepo(db)
	food := repository.NewFoodRepo(db)
	vouchers := repository.NewVoucherRepo(db)

	orderH := handler.NewOrderHandler(db, orders, showtimes, seats, food, vouchers, users, publisher, th, log)
	orderH.HoldTTL = cfg.OrderHoldTTL
	showtimeH := handler.NewShowtimeHandler(showtimes, movies)
	showtimeH.OnCancel = orderH.CancelShowtimeOrders
	go sweepHolds(ctx, orderH, log)

	h := router.Handlers{
		Health:    handler.Health(db),
		Auth:      handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db), repository.NewOTPRepo(db), publisher, log),
		Users:     handler.NewUserHandler(users, orders, th),
		Posts:     handler.NewPostHandler(repository.NewPostRepo(db)),
		Movies:    handler.NewMovieHandler(movies, showtimes),
		Cinemas:   handler.NewCinemaHandler(repository.NewCinemaRepo(db), repository.NewRoomRepo(db), seats),
		Showtimes: showtimeH,
		Food:      handler.NewFoodHandler(food),
		Vouchers:  handler.NewVoucherHandler(vouchers),
		Orders:    orderH,
		Reports:   handler.NewReportHandler(repository.NewReportRepo(db)),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestLogger(log))

	router.Register(e, h, router.Options{
		JWTSecret: cfg.JWTSecret,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
		Log:       log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("stopped")
}

// sweepHolds expires stale PENDING orders once a minute so their seats free
// up even when nobody books the same showtime.
func sweepHolds(ctx context.Context, h *handler.OrderHandler, log *zap.Logger) {
	if h.HoldTTL <= 0 {
		return
	}
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := h.ExpireStale(ctx)
			if err != nil {
				log.Warn("expire pending orders", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("pending orders expired", zap.Int("orders", n))
			}
		}
	}
}
