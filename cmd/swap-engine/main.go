package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/swap-engine/internal/access"
	"github.com/Checker-Finance/swap-engine/internal/agent"
	"github.com/Checker-Finance/swap-engine/internal/api"
	"github.com/Checker-Finance/swap-engine/internal/config"
	"github.com/Checker-Finance/swap-engine/internal/consumer"
	"github.com/Checker-Finance/swap-engine/internal/engine"
	"github.com/Checker-Finance/swap-engine/internal/ledger"
	"github.com/Checker-Finance/swap-engine/internal/pricefeed"
	"github.com/Checker-Finance/swap-engine/internal/publisher"
	"github.com/Checker-Finance/swap-engine/internal/rate"
	"github.com/Checker-Finance/swap-engine/internal/service"
	"github.com/Checker-Finance/swap-engine/internal/store"
	"github.com/Checker-Finance/swap-engine/pkg/logger"
	"github.com/Checker-Finance/swap-engine/pkg/secrets"
	"github.com/Checker-Finance/swap-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [swap-engine]...")

	// --- Resolve managed secrets (DSN, operator key) ---
	if cfg.DatabaseURLSecret != "" || cfg.OperatorKeySecret != "" {
		provider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		cache := secrets.NewCache[map[string]string](cfg.CacheTTL)
		resolve := func(name, field string) (string, bool) {
			vals, ok := cache.Get(name)
			if !ok {
				var err error
				vals, err = provider.GetSecret(ctx, name)
				if err != nil {
					logg.Warnw("secret fetch failed", "secret", name, "error", err)
					return "", false
				}
				cache.Put(name, vals)
			}
			v, ok := vals[field]
			return v, ok
		}
		if cfg.DatabaseURLSecret != "" {
			if dsn, ok := resolve(cfg.DatabaseURLSecret, "database_url"); ok {
				cfg.DatabaseURL = dsn
			}
		}
		if cfg.OperatorKeySecret != "" {
			if key, ok := resolve(cfg.OperatorKeySecret, "operator_key"); ok {
				cfg.OperatorKey = key
			}
		}
	}
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	defer nc.Drain() //nolint:errcheck

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.TradeSubject, cfg.AgentSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}
	defer st.Close() //nolint:errcheck

	// --- Core state ---
	gate := access.NewGate(cfg.OwnerWallet)
	book := ledger.NewMemory()
	agents := agent.NewRegistry(book, engine.AccountFeePool, logg.Desugar())

	params := engine.DefaultParams()
	if err := params.SetFees(cfg.MarketFeeBps, cfg.FixedFeeBps); err != nil {
		logg.Fatalw("invalid fee configuration", "error", err)
	}
	if err := params.SetCashback(cfg.CashbackPct); err != nil {
		logg.Fatalw("invalid cashback configuration", "error", err)
	}
	if err := params.SetMinimums(cfg.MinQuoteMarket, cfg.MinQuoteFixed); err != nil {
		logg.Fatalw("invalid minimum configuration", "error", err)
	}
	if err := params.SetLargeOrderThreshold(cfg.LargeOrderThreshold); err != nil {
		logg.Fatalw("invalid threshold configuration", "error", err)
	}
	if err := params.SetDustThreshold(cfg.DustThreshold); err != nil {
		logg.Fatalw("invalid dust configuration", "error", err)
	}
	if err := params.SetTimeouts(cfg.MarketTimeout, cfg.FixedTimeout); err != nil {
		logg.Fatalw("invalid timeout configuration", "error", err)
	}

	// --- Market price feed (optional) ---
	var prices engine.PriceSource
	if cfg.PriceFeedURL != "" {
		feed := pricefeed.New(cfg.PriceFeedURL, cfg.PriceFeedSymbol, time.Minute, logg.Desugar())
		if err := feed.Connect(ctx); err != nil {
			logg.Warnw("price feed unavailable, market fills use caller or stored price", "error", err)
		} else {
			defer feed.Close() //nolint:errcheck
			prices = feed
		}
	}

	// --- Engine + service ---
	sink := service.NewEventSink(st, pub, logg.Desugar())
	eng := engine.New(gate, agents, book, params, prices, sink, logg.Desugar())

	rateMgr := rate.NewManager(rate.Config{
		Requests: cfg.RateLimit,
		Period:   cfg.RatePeriod,
		Burst:    cfg.RateLimit,
	})

	svc := service.New(eng, st, pub, rateMgr, cfg.OpenOrdersKey, cfg.SnapshotTTL, logg.Desugar())

	// --- Command consumer (RabbitMQ) ---
	cons, err := consumer.NewConsumer(cfg.RabbitMQURL, consumer.Queues{
		Submit:  cfg.SubmitQueue,
		Execute: cfg.ExecuteQueue,
		Cancel:  cfg.CancelQueue,
	}, svc, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to connect to RabbitMQ", "error", err)
	}
	defer cons.Close() //nolint:errcheck
	if err := cons.Start(ctx); err != nil {
		logg.Fatalw("failed to start consumer", "error", err)
	}

	// --- HTTP API ---
	app := fiber.New()
	h := &api.Handler{
		Logger:  logg.Desugar(),
		Service: svc,
		Store:   st,
	}
	ah := &api.AdminHandler{
		Logger:  logg.Desugar(),
		Service: svc,
	}
	api.RegisterRoutes(app, h, ah, cfg.OperatorKey)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[swap-engine] running",
		"nats", cfg.NATSURL,
		"owner", cfg.OwnerWallet,
		"market_fee_bps", cfg.MarketFeeBps,
		"fixed_fee_bps", cfg.FixedFeeBps)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [swap-engine]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}
