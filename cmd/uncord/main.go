package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/uncord-chat/uncord-server/internal/api"
	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/auth"
	"github.com/uncord-chat/uncord-server/internal/channel"
	"github.com/uncord-chat/uncord-server/internal/config"
	"github.com/uncord-chat/uncord-server/internal/gateway"
	"github.com/uncord-chat/uncord-server/internal/httputil"
	"github.com/uncord-chat/uncord-server/internal/invite"
	"github.com/uncord-chat/uncord-server/internal/member"
	"github.com/uncord-chat/uncord-server/internal/message"
	"github.com/uncord-chat/uncord-server/internal/postgres"
	"github.com/uncord-chat/uncord-server/internal/server"
	"github.com/uncord-chat/uncord-server/internal/user"
	"github.com/uncord-chat/uncord-server/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
)

// deps holds the shared infrastructure both processes are built from.
type deps struct {
	cfg *config.Config
	db  *pgxpool.Pool
	rdb *redis.Client
}

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(args []string) error {
	if len(args) != 1 || (args[0] != "api" && args[0] != "gateway") {
		return fmt.Errorf("usage: uncord <api|gateway>")
	}
	mode := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("mode", mode).
		Str("env", cfg.Environment).
		Msg("Starting Uncord")

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseDSN(), 10, 2)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := valkey.Connect(ctx, cfg.BrokerAddr(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Broker connected")

	d := &deps{cfg: cfg, db: db, rdb: rdb}
	if mode == "gateway" {
		return runGateway(ctx, d)
	}
	return runAPI(ctx, d)
}

// runAPI starts the HTTP write-path process. It owns the migrations and publishes one broker event per committed
// mutation; it never pushes to clients directly.
func runAPI(_ context.Context, d *deps) error {
	if err := postgres.Migrate(d.cfg.DatabaseDSN(), log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	userRepo := user.NewPGRepository(d.db, log.Logger)
	serverRepo := server.NewPGRepository(d.db, log.Logger)
	channelRepo := channel.NewPGRepository(d.db, log.Logger)
	memberRepo := member.NewPGRepository(d.db, log.Logger)
	inviteRepo := invite.NewPGRepository(d.db, log.Logger)
	messageRepo := message.NewPGRepository(d.db, log.Logger)

	publisher := gateway.NewPublisher(d.rdb, d.cfg.Broker.Queue, d.cfg.BrokerPublishRetryDelay, log.Logger)
	authService := auth.NewService(userRepo, d.cfg, log.Logger)

	app := newFiberApp()
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(d.cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	requireAuth := auth.RequireAuth(d.cfg.Application.JWTSecret)

	health := api.NewHealthHandler(d.db, d.rdb)
	app.Get("/health", health.Health)

	authHandler := api.NewAuthHandler(authService, log.Logger)
	app.Post("/register", authHandler.Register)
	app.Post("/login", authHandler.Login)

	userHandler := api.NewUserHandler(userRepo, serverRepo, log.Logger)
	app.Get("/users", requireAuth, userHandler.Get)
	app.Get("/users/servers", requireAuth, userHandler.GetServers)

	serverHandler := api.NewServerHandler(serverRepo, channelRepo, memberRepo, inviteRepo, publisher, log.Logger)
	app.Post("/servers", requireAuth, serverHandler.Create)
	app.Get("/servers", requireAuth, serverHandler.List)
	app.Get("/servers/:serverID", requireAuth, serverHandler.Get)
	app.Post("/servers/:serverID", requireAuth, serverHandler.Update)
	app.Delete("/servers/:serverID", requireAuth, serverHandler.Delete)
	app.Get("/servers/:serverID/channels", requireAuth, serverHandler.ListChannels)
	app.Get("/servers/:serverID/users", requireAuth, serverHandler.ListUsers)
	app.Get("/servers/:serverID/invites", requireAuth, serverHandler.ListInvites)
	app.Post("/servers/:serverID/invites", requireAuth, serverHandler.CreateInvite)

	memberHandler := api.NewMemberHandler(memberRepo, serverRepo, inviteRepo, publisher, log.Logger)
	app.Put("/servers/:inviteCode/users", requireAuth, memberHandler.Join)
	app.Delete("/servers/:serverID/users", requireAuth, memberHandler.Leave)

	channelHandler := api.NewChannelHandler(channelRepo, serverRepo, publisher, log.Logger)
	app.Post("/servers/:serverID/channels", requireAuth, channelHandler.Create)
	app.Post("/channels/:channelID", requireAuth, channelHandler.Update)
	app.Delete("/channels/:channelID", requireAuth, channelHandler.Delete)

	messageHandler := api.NewMessageHandler(messageRepo, channelRepo, memberRepo, publisher, log.Logger)
	app.Post("/channels/:channelID/messages", requireAuth, messageHandler.Create)
	app.Get("/channels/:channelID/messages", requireAuth, messageHandler.List)
	app.Patch("/channels/:channelID/messages/:messageID", requireAuth, messageHandler.Update)

	// Catch-all handler returns 404 for any request that does not match a defined route. Fiber v3 treats app.Use()
	// middleware as route matches, so without this terminal handler the router considers unmatched requests
	// "handled" and returns the default 200 status with an empty body.
	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	return listen(app, d.cfg, nil)
}

// runGateway starts the fan-out process: the WebSocket listener, the Hub, and the bus consumer reading the durable
// event stream the API publishes to.
func runGateway(ctx context.Context, d *deps) error {
	serverRepo := server.NewPGRepository(d.db, log.Logger)
	channelRepo := channel.NewPGRepository(d.db, log.Logger)
	memberRepo := member.NewPGRepository(d.db, log.Logger)
	messageRepo := message.NewPGRepository(d.db, log.Logger)

	store := gateway.NewRepoStore(serverRepo, channelRepo, memberRepo, messageRepo)
	hub := gateway.NewHub(store, d.cfg, log.Logger)

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	consumer := gateway.NewConsumer(d.rdb, hub, d.cfg.Broker.Queue, log.Logger)
	consumer.EnsureStream(subCtx)
	go runWithBackoff(subCtx, "bus-consumer", consumer.Run)

	app := newFiberApp()

	health := api.NewHealthHandler(d.db, d.rdb)
	app.Get("/health", health.Health)

	// The gateway endpoint is unauthenticated; authentication happens inside the WebSocket via Identify.
	gatewayHandler := api.NewGatewayHandler(hub)
	app.Get("/gateway", gatewayHandler.Upgrade)

	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	shutdown := func() {
		subCancel()
		hub.Shutdown()
	}
	return listen(app, d.cfg, shutdown)
}

// newFiberApp creates a Fiber app with the shared middleware and error handler.
func newFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Uncord",
		// ErrorHandler catches errors returned by handlers that are not already mapped to structured API responses
		// (e.g. Fiber's built-in 404/405). errors.AsType is a generic helper added in Go 1.26.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			apiCode := apierrors.InternalError
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
				apiCode = fiberStatusToAPICode(e.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{
					Code:    apiCode,
					Message: message,
				},
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger, "/health"))
	return app
}

// listen serves the app until SIGINT/SIGTERM, then runs the optional extra shutdown hook and drains in-flight
// requests.
func listen(app *fiber.App, cfg *config.Config, extraShutdown func()) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down")
		if extraShutdown != nil {
			extraShutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port)
	log.Info().Str("addr", addr).Msg("Listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when it returns a non-nil, non-cancelled
// error. If fn returns nil or context.Canceled the goroutine exits. The delay starts at 1 second and doubles on each
// consecutive failure up to a 2-minute cap.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = 2 * time.Minute
	)
	delay := initialDelay
	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("service", name).Dur("retry_in", delay).
				Msg("Background service stopped, restarting after delay")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		return
	}
}

// fiberStatusToAPICode maps an HTTP status code from Fiber's built-in errors (404, 405, etc.) to the closest
// structured error code.
func fiberStatusToAPICode(status int) apierrors.Code {
	switch status {
	case fiber.StatusNotFound:
		return apierrors.NotFound
	case fiber.StatusMethodNotAllowed:
		return apierrors.ValidationError
	case fiber.StatusTooManyRequests:
		return apierrors.RateLimited
	case fiber.StatusRequestEntityTooLarge:
		return apierrors.PayloadTooLarge
	case fiber.StatusServiceUnavailable:
		return apierrors.ServiceUnavailable
	default:
		if status >= 400 && status < 500 {
			return apierrors.ValidationError
		}
		return apierrors.InternalError
	}
}
