package main // Entry point package

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avelory/drop-page-reservation/internal/config"
	"github.com/avelory/drop-page-reservation/internal/database"
	"github.com/avelory/drop-page-reservation/internal/engine"
	"github.com/avelory/drop-page-reservation/internal/handler"
	"github.com/avelory/drop-page-reservation/internal/queue"
	"github.com/avelory/drop-page-reservation/internal/repository"
	"github.com/avelory/drop-page-reservation/internal/router"
	"github.com/avelory/drop-page-reservation/internal/service"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "drop-reservation").Logger()
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = logger

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	// Redis is optional: without it the rate limiter and response cache
	// silently disable themselves.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn().Msg("redis unavailable; rate limiting and response caching disabled")
	}

	holds := repository.NewReservationRepo(db)
	orders := repository.NewOrderRepo(db)
	products := repository.NewProductRepo(db)
	pages := repository.NewPageRepo(db)
	sections := repository.NewSectionRepo(db)
	accounts := repository.NewAccountRepo(db)

	numbers := service.NewOrderNumberService(orders)
	notifier := service.NewOrderNotifier()
	activity := service.NewActivityLogger(logger)
	autoIncrease := service.NewAutoIncrease(sections, products, orders, holds, logger)

	eng := engine.New(db, holds, orders, products, pages, sections, accounts, numbers, logger,
		notifier, activity, autoIncrease)

	// The consumer drains confirmation and back-in-stock events; it
	// reconnects on its own and must not block startup.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			logger.Warn().Err(err).Msg("notification consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, accounts), cfg.JWTSecret)
	router.RegisterReservations(e, handler.NewReservationHandler(eng, pages), rdb)
	router.RegisterOrders(e, handler.NewOrderHandler(eng, pages, orders), cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
