// Package common provides shared utilities for the CLI commands.
//
// This package contains helper functions used by the surveyd and oracle-sim
// binaries to reduce code duplication:
//
//   - Key loading and generation for Ed25519 signing keys
//   - TEE provider and measurement source factory functions
package common

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/Veblen3358/secure-reveal-lab/server"
	"github.com/Veblen3358/secure-reveal-lab/tdx"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewAttestationProvider creates a TEE provider based on configuration flags.
// Returns TDXProvider or RemoteDCAPProvider when useTDX is true,
// otherwise returns DummyProvider for testing.
func NewAttestationProvider(useTDX bool, remoteTDXURL string) server.TEEProvider {
	if useTDX {
		if remoteTDXURL != "" {
			return &tdx.RemoteDCAPProvider{URL: remoteTDXURL, Timeout: 30 * time.Second}
		}
		return &tdx.TDXProvider{}
	}
	return &tdx.DummyProvider{}
}

// NewMeasurementSource creates a measurement source from a URL. Returns the
// demo source for "demo", and nil if measurementsURL is empty, indicating no
// measurement verification should be performed.
func NewMeasurementSource(measurementsURL string) server.MeasurementSource {
	switch measurementsURL {
	case "":
		return nil
	case "demo":
		return server.DemoMeasurementSource()
	default:
		return server.NewRemoteMeasurementSource(measurementsURL)
	}
}
