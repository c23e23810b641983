package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"leasenet/config"
	"leasenet/core/events"
	"leasenet/native/lease"
	"leasenet/observability/logging"
	"leasenet/relay"
	"leasenet/rpc"
	"leasenet/storage"
)

func main() {
	configFile := flag.String("config", "./leasenet.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEASENET_ENV"))
	logger := logging.Setup("leasenetd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env != "" {
		cfg.Environment = env
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := lease.NewStore(db)
	admin := cfg.Address(cfg.AdminAddress)

	engine := lease.NewEngine()
	engine.SetState(store)
	engine.SetAssetVault(newCustodyLog(logger))
	engine.SetLeaseMinter(newMintLog(logger))
	engine.SetAdmin(admin)
	engine.SetFeeTerms(cfg.Address(cfg.FeeReceiver), cfg.FeePercent)
	engine.SetPaymentVault(cfg.Address(cfg.PaymentVault))
	engine.SetLocalNetwork(cfg.NetworkName)
	engine.SetEmitter(newEventLog(logger))

	registry := relay.NewRegistry(admin, store)
	if err := registry.Hydrate(); err != nil {
		logger.Error("Failed to hydrate linker registry", slog.Any("error", err))
		os.Exit(1)
	}
	book, err := relay.LoadAddressBook(cfg.LinkerAddressBook)
	if err != nil {
		logger.Error("Failed to load linker address book", slog.Any("error", err))
		os.Exit(1)
	}
	if err := book.Seed(registry, admin); err != nil {
		logger.Error("Failed to seed linker registry", slog.Any("error", err))
		os.Exit(1)
	}

	gateway := relay.NewGateway(registry, engine, admin, logger)
	gateway.SetEmitter(newEventLog(logger))

	var auth *rpc.Authenticator
	if secrets := cfg.Secrets(); len(secrets) > 0 {
		auth = rpc.NewAuthenticator(secrets, cfg.AuthSkew(), 0, nil)
	}
	adminAuth := rpc.NewAdminAuthenticator(rpc.AdminAuthConfig{
		Enabled:    cfg.AdminAuth.Enabled,
		HMACSecret: cfg.AdminAuth.HMACSecret,
		Issuer:     cfg.AdminAuth.Issuer,
		Audience:   cfg.AdminAuth.Audience,
	}, logger)
	limits := make(map[string]rpc.RateLimit, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		limits[key] = rpc.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	limiter := rpc.NewRateLimiter(limits, logger)

	server := rpc.NewServer(engine, gateway, registry, auth, adminAuth, limiter, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("address", cfg.ListenAddress), slog.String("network", cfg.NetworkName))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}

// custodyLog records asset custody transitions until a chain-side vault
// adapter is attached. Listings remain fully functional; the log is the audit
// trail for the physical asset moves an operator has to mirror.
type custodyLog struct {
	logger *slog.Logger
}

func newCustodyLog(logger *slog.Logger) *custodyLog {
	return &custodyLog{logger: logger.With(slog.String("component", "custody"))}
}

func (c *custodyLog) Custody(collection [20]byte, assetID uint64, owner [20]byte) error {
	c.logger.Info("asset taken into custody",
		slog.String("collection", common.Address(collection).Hex()),
		slog.Uint64("assetId", assetID),
		slog.String("owner", common.Address(owner).Hex()))
	return nil
}

func (c *custodyLog) Release(collection [20]byte, assetID uint64, owner [20]byte) error {
	c.logger.Info("asset released from custody",
		slog.String("collection", common.Address(collection).Hex()),
		slog.Uint64("assetId", assetID),
		slog.String("owner", common.Address(owner).Hex()))
	return nil
}

type mintLog struct {
	logger *slog.Logger
}

func newMintLog(logger *slog.Logger) *mintLog {
	return &mintLog{logger: logger.With(slog.String("component", "minter"))}
}

func (m *mintLog) Adopt(wrapped [20]byte) error {
	m.logger.Info("wrapped collection adopted", slog.String("wrapped", common.Address(wrapped).Hex()))
	return nil
}

func (m *mintLog) MintLease(wrapped [20]byte, assetID uint64, borrower [20]byte, expires int64) error {
	m.logger.Info("usage rights minted",
		slog.String("wrapped", common.Address(wrapped).Hex()),
		slog.Uint64("assetId", assetID),
		slog.String("borrower", common.Address(borrower).Hex()),
		slog.Int64("expires", expires))
	return nil
}

func (m *mintLog) BurnLease(wrapped [20]byte, assetID uint64) error {
	m.logger.Info("usage rights burned",
		slog.String("wrapped", common.Address(wrapped).Hex()),
		slog.Uint64("assetId", assetID))
	return nil
}

type eventLog struct {
	logger *slog.Logger
}

func newEventLog(logger *slog.Logger) *eventLog {
	return &eventLog{logger: logger.With(slog.String("component", "events"))}
}

func (e *eventLog) Emit(evt events.Event) {
	e.logger.Info("event emitted", slog.String("type", evt.EventType()))
}
