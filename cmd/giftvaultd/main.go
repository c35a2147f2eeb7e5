package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"giftvault/config"
	"giftvault/core/events"
	"giftvault/core/state"
	"giftvault/core/types"
	"giftvault/crypto"
	"giftvault/native/gift"
	"giftvault/observability"
	"giftvault/observability/logging"
	"giftvault/rpc"
	"giftvault/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GIFTVAULT_ENV"))
	logger := logging.Setup("giftvaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := bootstrap(manager, cfg); err != nil {
		logger.Error("Failed to apply bootstrap configuration", slog.Any("error", err))
		os.Exit(1)
	}

	engine := gift.NewEngine()
	engine.SetState(manager)
	engine.SetFeeSource(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(runtimeEmitter{logger: logger})

	server := rpc.NewServer(engine, manager)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress), slog.String("network", cfg.NetworkName))
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	select {}
}

// bootstrap applies first-boot state from the config file. Every step is
// idempotent so restarts with the same config are safe.
func bootstrap(manager *state.Manager, cfg *config.Config) error {
	for _, tok := range cfg.Tokens {
		if manager.TokenExists(tok.Symbol) {
			continue
		}
		if err := manager.RegisterToken(tok.Symbol, tok.Name, tok.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", tok.Symbol, err)
		}
	}
	if cfg.GasFee.PerSplit != "" {
		perSplit, ok := new(big.Int).SetString(cfg.GasFee.PerSplit, 10)
		if !ok || perSplit.Sign() < 0 {
			return fmt.Errorf("invalid GasFee.PerSplit %q", cfg.GasFee.PerSplit)
		}
		if err := manager.SetGasQuote(cfg.GasFee.Token, perSplit); err != nil {
			return fmt.Errorf("set gas quote: %w", err)
		}
	}
	if err := grantAll(manager, gift.RoleAdmin, cfg.BootstrapAdmins); err != nil {
		return err
	}
	return grantAll(manager, gift.RoleManager, cfg.BootstrapManagers)
}

func grantAll(manager *state.Manager, role string, encoded []string) error {
	for _, raw := range encoded {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("decode %s address %q: %w", role, raw, err)
		}
		if err := manager.SetRole(role, addr.Bytes()); err != nil {
			return fmt.Errorf("grant %s to %s: %w", role, raw, err)
		}
	}
	return nil
}

// runtimeEmitter forwards engine events to the structured log and the
// prometheus counters.
type runtimeEmitter struct {
	logger *slog.Logger
}

func (r runtimeEmitter) Emit(evt events.Event) {
	var attrs map[string]string
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if ev := carrier.Event(); ev != nil {
			attrs = ev.Attributes
		}
	}

	metrics := observability.Gifts()
	switch evt.EventType() {
	case events.TypeGiftCreated:
		metrics.RecordCreate(attrs["kind"])
	case events.TypeGiftClaimed:
		metrics.RecordClaim(attrs["token"])
	case events.TypeGiftRefunded:
		metrics.RecordRefund()
	}

	if r.logger == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	for k, v := range attrs {
		args = append(args, slog.String(k, v))
	}
	r.logger.Info("ledger event", args...)
}
