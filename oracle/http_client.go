package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DecryptRequest is the wire format the ledger sends to a remote oracle.
type DecryptRequest struct {
	Handles     []Handle `json:"handles"`
	CallbackURL string   `json:"callback_url"`
}

// DecryptResponse acknowledges a decryption request with its correlation id.
type DecryptResponse struct {
	CorrelationID CorrelationID `json:"correlation_id"`
}

// HTTPOracle implements DecryptionOracle against a remote oracle service.
// The oracle answers the request synchronously with a correlation id and
// delivers the plaintexts later by POSTing a signed DecryptionResult to
// CallbackURL.
type HTTPOracle struct {
	// BaseURL is the oracle service root, e.g. "http://oracle:8090".
	BaseURL string

	// CallbackURL is where the oracle should deliver results, typically the
	// ledger's /oracle/callback endpoint.
	CallbackURL string

	// Client is the HTTP client to use. Defaults to a 10s-timeout client.
	Client *http.Client
}

func (o *HTTPOracle) httpClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// RequestDecryption submits handles to the remote oracle.
func (o *HTTPOracle) RequestDecryption(ctx context.Context, handles []Handle) (CorrelationID, error) {
	body, err := SerializeMessage(&DecryptRequest{
		Handles:     handles,
		CallbackURL: o.CallbackURL,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/decrypt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(msg))
	}

	ack, err := DecodeMessage[DecryptResponse](resp.Body)
	if err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if ack.CorrelationID == "" {
		return "", fmt.Errorf("oracle returned empty correlation id")
	}
	return ack.CorrelationID, nil
}
