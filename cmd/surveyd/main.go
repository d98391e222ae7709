// Command surveyd runs the survey ledger daemon.
//
// The daemon serves three route groups: the public survey API under /api,
// oracle registration under /oracle/register, and signed decryption
// callbacks under /oracle/callback. State is journaled to PostgreSQL when
// configured, otherwise kept in memory.
//
// # Decryption Oracle
//
// Point --oracle at a running oracle service (see cmd/oracle-sim). Without
// one, surveyd runs an in-process demo oracle that answers its own
// decryption requests; only use that for local development.
//
// # Usage
//
//	go run ./cmd/surveyd --addr=:8080 --oracle=http://localhost:8090
//	go run ./cmd/surveyd --config=surveyd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veblen3358/secure-reveal-lab/api/httpserver"
	"github.com/Veblen3358/secure-reveal-lab/cmd/common"
	pkginfo "github.com/Veblen3358/secure-reveal-lab/common"
	"github.com/Veblen3358/secure-reveal-lab/ledger"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/Veblen3358/secure-reveal-lab/server"
)

// AttestationConfig controls how oracle registrations are verified.
type AttestationConfig struct {
	UseTDX          bool   `yaml:"use_tdx"`
	TDXRemoteURL    string `yaml:"tdx_remote_url"`
	MeasurementsURL string `yaml:"measurements_url"`
}

// Config holds the surveyd configuration, loadable from YAML.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	OracleURL   string `yaml:"oracle_url"`
	CallbackURL string `yaml:"callback_url"`

	// InsecureAcceptAllCallbacks disables callback authentication entirely.
	InsecureAcceptAllCallbacks bool `yaml:"insecure_accept_all_callbacks"`

	Postgres    *ledger.PostgresConfig `yaml:"postgres"`
	Attestation AttestationConfig      `yaml:"attestation"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		CallbackURL: "http://localhost:8080/oracle/callback",
		Attestation: AttestationConfig{MeasurementsURL: "demo"},
	}
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		addr            = flag.String("addr", "", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		enablePprof     = flag.Bool("pprof", false, "Enable pprof debugging API")
		oracleURL       = flag.String("oracle", "", "Decryption oracle base URL")
		callbackURL     = flag.String("callback", "", "Callback URL the oracle should deliver results to")
		measurementsURL = flag.String("measurements-url", "", `Allowed measurements URL ("demo" accepts dummy attestations)`)
		useTDX          = flag.Bool("tdx", false, "Verify real TDX attestations")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote TDX attestation service URL")
		acceptAll       = flag.Bool("insecure-accept-all-callbacks", false, "Disable callback authentication (dev only)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	// Flags override config file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ListenAddr = *addr
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "pprof":
			cfg.EnablePprof = *enablePprof
		case "oracle":
			cfg.OracleURL = *oracleURL
		case "callback":
			cfg.CallbackURL = *callbackURL
		case "measurements-url":
			cfg.Attestation.MeasurementsURL = *measurementsURL
		case "tdx":
			cfg.Attestation.UseTDX = *useTDX
		case "tdx-url":
			cfg.Attestation.TDXRemoteURL = *remoteTDXURL
		case "insecure-accept-all-callbacks":
			cfg.InsecureAcceptAllCallbacks = *acceptAll
		}
	})

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log.Info("starting surveyd", "package", pkginfo.PackageName, "version", pkginfo.Version)

	var store ledger.Store
	if cfg.Postgres != nil {
		pgStore, err := ledger.NewPostgresStore(cfg.Postgres)
		if err != nil {
			log.Error("connecting to postgres failed", "err", err)
			os.Exit(1)
		}
		store = pgStore
		log.Info("using postgres store", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	} else {
		store = ledger.NewInMemoryStore()
		log.Warn("no postgres configured, state will not survive restarts")
	}
	defer store.Close()

	provider := common.NewAttestationProvider(cfg.Attestation.UseTDX, cfg.Attestation.TDXRemoteURL)
	source := common.NewMeasurementSource(cfg.Attestation.MeasurementsURL)
	oracles := server.NewOracleRegistry(source, provider, log)

	var verifier oracle.CallbackVerifier = oracles
	if cfg.InsecureAcceptAllCallbacks {
		log.Warn("callback authentication disabled")
		verifier = oracle.AcceptAllVerifier{}
	}

	var dec oracle.DecryptionOracle
	var demoOracle *oracle.MockOracle
	if cfg.OracleURL != "" {
		dec = &oracle.HTTPOracle{BaseURL: cfg.OracleURL, CallbackURL: cfg.CallbackURL}
		log.Info("using remote decryption oracle", "url", cfg.OracleURL, "callback", cfg.CallbackURL)
	} else {
		demoOracle, err = oracle.NewMockOracle()
		if err != nil {
			log.Error("creating demo oracle failed", "err", err)
			os.Exit(1)
		}
		dec = demoOracle
		verifier = oracle.AcceptAllVerifier{}
		log.Warn("no oracle configured, running in-process demo oracle")
	}

	l, err := ledger.New(ledger.Config{
		Coprocessor: oracle.NewDevCoprocessor(),
		Oracle:      dec,
		Verifier:    verifier,
		Store:       store,
		Log:         log,
	})
	if err != nil {
		log.Error("creating ledger failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The demo oracle parks results; deliver them shortly after each request.
	if demoOracle != nil {
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := demoOracle.DeliverAll(l); err != nil {
						log.Error("demo oracle delivery failed", "err", err)
					}
				}
			}
		}()
	}

	go logEvents(ctx, l.Notifier().Subscribe(256), log)

	handler := server.NewHandler(l, oracles, log)
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		log.Error("creating HTTP server failed", "err", err)
		os.Exit(1)
	}
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	srv.Shutdown()
}

// logEvents mirrors ledger events into the structured log.
func logEvents(ctx context.Context, events <-chan ledger.Event, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			log.Info("ledger event",
				"type", ev.Type,
				"surveyID", ev.SurveyID,
				"respondent", ev.Respondent,
				"correlationID", ev.CorrelationID)
		}
	}
}
