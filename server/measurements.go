package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Measurements maps TDX register indices to measurement values extracted
// from a verified attestation.
type Measurements map[int][]byte

// PublishedMeasurements lists the oracle builds a deployment accepts. The
// file is an array of entries; an oracle is accepted if its attestation
// matches any entry.
//
// JSON format:
//
//	[
//	  {
//	    "measurement_id": "oracle-v0.2.0-tdx-abc123...",
//	    "measurements": {
//	      0: {"expected": "hex-encoded-mrtd..."},
//	      1: {"expected": "hex-encoded-rtmr0..."}
//	    }
//	  }
//	]
type PublishedMeasurements []MeasurementEntry

// MeasurementEntry represents a single acceptable oracle build.
type MeasurementEntry struct {
	MeasurementID string                   `json:"measurement_id"`
	Measurements  map[int]MeasurementValue `json:"measurements"`
}

// MeasurementValue holds an expected measurement value.
type MeasurementValue struct {
	Expected string `json:"expected"`
}

// MeasurementSource provides the allowed measurement sets for oracle
// registration.
type MeasurementSource interface {
	GetAllowedMeasurements() (PublishedMeasurements, error)
}

// StaticMeasurementSource serves measurements from a fixed configuration,
// for tests and deployments whose oracle builds are known in advance.
type StaticMeasurementSource struct {
	Measurements PublishedMeasurements
}

// NewStaticMeasurementSource creates a source with predefined measurements.
func NewStaticMeasurementSource(measurements PublishedMeasurements) *StaticMeasurementSource {
	return &StaticMeasurementSource{Measurements: measurements}
}

// GetAllowedMeasurements returns the static measurement sets.
func (s *StaticMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	return s.Measurements, nil
}

// DemoMeasurementSource accepts the values produced by tdx.DummyProvider.
// Only use in demo and test environments.
func DemoMeasurementSource() *StaticMeasurementSource {
	return NewStaticMeasurementSource(PublishedMeasurements{
		{
			MeasurementID: "demo-dummy-attestation",
			Measurements: map[int]MeasurementValue{
				0: {Expected: "00"},
				1: {Expected: "01"},
				2: {Expected: "02"},
				3: {Expected: "03"},
				4: {Expected: "04"},
			},
		},
	})
}

// RemoteMeasurementSource fetches allowed measurements from a URL and
// caches them briefly.
type RemoteMeasurementSource struct {
	URL        string
	HTTPClient *http.Client

	cacheUntil time.Time
	cached     PublishedMeasurements
}

// NewRemoteMeasurementSource creates a source that fetches from url.
func NewRemoteMeasurementSource(url string) *RemoteMeasurementSource {
	return &RemoteMeasurementSource{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetAllowedMeasurements fetches (or returns cached) measurement sets.
func (s *RemoteMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	if s.cached != nil && time.Now().Before(s.cacheUntil) {
		return s.cached, nil
	}

	resp, err := s.HTTPClient.Get(s.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching measurements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("measurements endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var measurements PublishedMeasurements
	if err := json.Unmarshal(body, &measurements); err != nil {
		return nil, fmt.Errorf("parsing measurements: %w", err)
	}

	s.cached = measurements
	s.cacheUntil = time.Now().Add(5 * time.Minute)
	return measurements, nil
}

// VerifyMeasurementsMatch checks actual measurements against every allowed
// entry and returns the first match.
func VerifyMeasurementsMatch(allowed PublishedMeasurements, actual Measurements) (MeasurementEntry, error) {
	for _, entry := range allowed {
		matches := true
		for idx, expected := range entry.Measurements {
			actualVal, ok := actual[idx]
			if !ok || expected.Expected != hex.EncodeToString(actualVal) {
				matches = false
				break
			}
		}
		if matches {
			return entry, nil
		}
	}
	return MeasurementEntry{}, errors.New("measurements do not match any allowed set")
}
