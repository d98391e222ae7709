// Command oracle-sim runs a demo decryption oracle.
//
// The simulator generates an Ed25519 signing key, registers it with the
// ledger (backed by a dummy attestation unless --tdx is set), and serves
// POST /decrypt. Each request is acknowledged with a fresh correlation id;
// the decrypted plaintexts are delivered asynchronously by POSTing a signed
// result to the callback URL the ledger supplied.
//
// It decodes dev-scheme handles directly. A production oracle would hold
// the FHE decryption key shares instead; the wire protocol is the same.
//
// # Usage
//
//	go run ./cmd/oracle-sim --addr=:8090 --ledger=http://localhost:8080
//	go run ./cmd/oracle-sim --addr=:8090 --ledger=http://localhost:8080 --delay=2s
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Veblen3358/secure-reveal-lab/cmd/common"
	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/Veblen3358/secure-reveal-lab/server"
)

type simulator struct {
	signingKey crypto.PrivateKey
	endpoint   string
	delay      time.Duration
	log        *slog.Logger
	client     *http.Client
}

func (s *simulator) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	req, err := oracle.DecodeMessage[oracle.DecryptRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Handles) == 0 || req.CallbackURL == "" {
		http.Error(w, "missing handles or callback url", http.StatusBadRequest)
		return
	}

	plaintexts := make([]int64, len(req.Handles))
	for i, h := range req.Handles {
		v, err := oracle.DecodeHandle(h)
		if err != nil {
			http.Error(w, fmt.Sprintf("handle %d: %v", i, err), http.StatusBadRequest)
			return
		}
		plaintexts[i] = v
	}

	cid := oracle.CorrelationID(uuid.NewString())
	s.log.Info("accepted decryption request",
		"correlation_id", cid,
		"handles", len(req.Handles),
		"callback", req.CallbackURL)

	go s.deliver(cid, plaintexts, req.CallbackURL)

	w.Header().Set("Content-Type", "application/json")
	body, _ := oracle.SerializeMessage(&oracle.DecryptResponse{CorrelationID: cid})
	w.Write(body)
}

// deliver POSTs the signed result to the ledger's callback endpoint after
// the configured delay.
func (s *simulator) deliver(cid oracle.CorrelationID, plaintexts []int64, callbackURL string) {
	time.Sleep(s.delay)

	res := &oracle.DecryptionResult{CorrelationID: cid, Plaintexts: plaintexts}
	signed, err := oracle.NewSigned(s.signingKey, res)
	if err != nil {
		s.log.Error("signing result failed", "correlation_id", cid, "err", err)
		return
	}
	body, err := oracle.SerializeMessage(signed)
	if err != nil {
		s.log.Error("serializing result failed", "correlation_id", cid, "err", err)
		return
	}

	resp, err := s.client.Post(callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		s.log.Error("callback delivery failed", "correlation_id", cid, "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("callback rejected", "correlation_id", cid, "status", resp.StatusCode)
		return
	}
	s.log.Info("delivered decryption result", "correlation_id", cid)
}

// register submits a signed, attested registration to the ledger.
func (s *simulator) register(ledgerURL string, provider server.TEEProvider) error {
	pub, err := s.signingKey.PublicKey()
	if err != nil {
		return err
	}

	reg := &server.OracleRegistration{
		PublicKey: pub.String(),
		Endpoint:  s.endpoint,
	}
	reg.Attestation, err = server.AttestOracleRegistration(provider, reg)
	if err != nil {
		return fmt.Errorf("attesting registration: %w", err)
	}

	signed, err := oracle.NewSigned(s.signingKey, reg)
	if err != nil {
		return err
	}
	body, err := oracle.SerializeMessage(signed)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(ledgerURL+"/oracle/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger rejected registration with status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	var (
		addr          = flag.String("addr", ":8090", "HTTP listen address")
		endpoint      = flag.String("endpoint", "", "Externally reachable oracle URL (defaults to http://localhost<addr>)")
		ledgerURL     = flag.String("ledger", "", "Ledger base URL to register with (skips registration if empty)")
		delay         = flag.Duration("delay", time.Second, "Artificial decryption latency")
		useTDX        = flag.Bool("tdx", false, "Use real TDX attestation")
		remoteTDXURL  = flag.String("tdx-url", "", "Remote TDX attestation service URL")
		signingKeyHex = flag.String("signing-key", "", "Ed25519 signing key (hex, generates if empty)")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	signingKey, err := common.LoadOrGenerateSigningKey(*signingKeyHex)
	if err != nil {
		log.Error("signing key error", "err", err)
		os.Exit(1)
	}
	pub, _ := signingKey.PublicKey()
	log.Info("oracle signing key", "pubkey", pub.String())

	if *endpoint == "" {
		*endpoint = "http://localhost" + *addr
	}

	sim := &simulator{
		signingKey: signingKey,
		endpoint:   *endpoint,
		delay:      *delay,
		log:        log,
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	if *ledgerURL != "" {
		provider := common.NewAttestationProvider(*useTDX, *remoteTDXURL)
		if err := sim.register(*ledgerURL, provider); err != nil {
			log.Error("registration failed", "ledger", *ledgerURL, "err", err)
			os.Exit(1)
		}
		log.Info("registered with ledger", "ledger", *ledgerURL)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/decrypt", sim.handleDecrypt)
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"alive"}`))
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("oracle listening", "addr", *addr, "endpoint", *endpoint)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	srv.Close()
}
