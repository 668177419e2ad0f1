package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"foodrun/internal/config"
	"foodrun/internal/env"
	"foodrun/internal/infrastructure/events"
	"foodrun/internal/infrastructure/repo"
	"foodrun/internal/logger"
	"foodrun/internal/server"
	"foodrun/internal/usecase"

	"golang.org/x/sync/errgroup"
)

type cliArgs struct {
	mode       string
	email      string
	password   string
	orderID    string
	to         string
	restaurant string
	dishes     string
	address    string
}

func main() {
	env.Load(".env", ".env.local")
	envDefaults := config.EnvDefaults()

	mode := flag.String("mode", "serve", "serve | watch | advance | claim | order")
	envName := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	apiURL := flag.String("api", envDefaults.APIBaseURL, "order store base URL")
	jwtSecret := flag.String("jwt-secret", envDefaults.JWTSecret, "")
	logJSON := flag.Bool("log-json", envDefaults.LogJSON, "")
	storeDriver := flag.String("store", envDefaults.StoreDriver, "memory | postgres | sqlite")
	dbURL := flag.String("database-url", envDefaults.DatabaseURL, "")
	sqlitePath := flag.String("sqlite", envDefaults.SQLitePath, "")
	eventsDriver := flag.String("events", envDefaults.EventsDriver, "log | amqp | kafka")
	pollInterval := flag.Duration("poll", envDefaults.PollInterval, "")
	trackInterval := flag.Duration("track", envDefaults.TrackInterval, "")
	email := flag.String("email", os.Getenv("FOODRUN_EMAIL"), "")
	password := flag.String("password", os.Getenv("FOODRUN_PASSWORD"), "")
	orderID := flag.String("order", "", "order id")
	to := flag.String("to", "", "target status")
	restaurant := flag.String("restaurant", "", "restaurant id")
	dishes := flag.String("dishes", "", "dishId:qty,...")
	address := flag.String("address", "", "delivery address")

	flag.Parse()

	cfg := envDefaults
	cfg.Env = *envName
	cfg.Port = *port
	cfg.APIBaseURL = *apiURL
	cfg.JWTSecret = *jwtSecret
	cfg.LogJSON = *logJSON
	cfg.StoreDriver = *storeDriver
	cfg.DatabaseURL = *dbURL
	cfg.SQLitePath = *sqlitePath
	cfg.EventsDriver = *eventsDriver
	cfg.PollInterval = *pollInterval
	cfg.TrackInterval = *trackInterval

	args := cliArgs{
		mode:       *mode,
		email:      *email,
		password:   *password,
		orderID:    *orderID,
		to:         *to,
		restaurant: *restaurant,
		dishes:     *dishes,
		address:    *address,
	}

	log := logger.New("foodrun-"+args.mode, cfg.LogJSON)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args.mode {
	case "serve":
		err = serve(ctx, cfg, log)
	case "watch", "advance", "claim", "order":
		err = runClient(ctx, cfg, args, log)
	default:
		err = fmt.Errorf("unknown mode %q", args.mode)
	}
	if err != nil {
		log.Error("exit", "action", "exit", "error", err)
		os.Exit(1)
	}
}

type store interface {
	usecase.OrderRepo
	usecase.UserRepo
	usecase.DishRepo
	Close() error
}

func openStore(cfg config.Config) (store, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return repo.NewMemoryStore(), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store needs FOODRUN_DATABASE_URL")
		}
		return repo.NewPostgresRepo(cfg.DatabaseURL)
	case "sqlite":
		return repo.NewSQLiteRepo(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.JWTSecret == "" {
		if cfg.Env != "dev" {
			return fmt.Errorf("FOODRUN_JWT_SECRET is required outside dev")
		}
		cfg.JWTSecret = "dev-secret"
		log.Warn("using development jwt secret", "action", "config")
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pub, err := events.New(events.Options{
		Driver:       cfg.EventsDriver,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		Log:          log,
	})
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer pub.Close()

	srv := server.New(cfg, server.Deps{
		Orders: &usecase.OrderService{Repo: st, Catalog: st, Events: pub, Log: log},
		Auth:   &usecase.AuthService{Repo: st, JWTSecret: cfg.JWTSecret, TTL: cfg.TokenTTL},
		Dishes: &usecase.DishService{Repo: st},
		Log:    log,
	})
	log.Info("starting", "action", "startup", "store", cfg.StoreDriver, "events", cfg.EventsDriver)

	// a lost broker stops the server so the process can be restarted
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return events.Watch(gctx, pub) })
	return g.Wait()
}
