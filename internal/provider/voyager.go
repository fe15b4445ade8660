package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/config"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// TxInfo is the per-hash payload of a batch metadata response. Sender is
// absent when the explorer could not resolve the transaction signer.
type TxInfo struct {
	TimestampISO string `json:"timestampIso"`
	Sender       string `json:"sender,omitempty"`
}

// VoyagerClient resolves transaction metadata in batches.
type VoyagerClient interface {
	BatchTransactions(ctx context.Context, hashes []string) (map[string]TxInfo, error)
}

// HTTPVoyagerClient implements VoyagerClient against the explorer proxy.
// A non-2xx status is a total batch failure: no partial application.
type HTTPVoyagerClient struct {
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

// NewVoyagerClient creates a client with a bounded request timeout so a slow
// explorer degrades to a recoverable failure instead of a hang.
func NewVoyagerClient(cfg *config.VoyagerConfig) *HTTPVoyagerClient {
	return &HTTPVoyagerClient{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   utils.GetLogger(),
	}
}

type batchRequest struct {
	Hashes []string `json:"hashes"`
}

// BatchTransactions resolves metadata for up to 100 hashes in one request.
func (c *HTTPVoyagerClient) BatchTransactions(ctx context.Context, hashes []string) (map[string]TxInfo, error) {
	if len(hashes) == 0 {
		return map[string]TxInfo{}, nil
	}

	body, err := json.Marshal(batchRequest{Hashes: hashes})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeResolver, "Failed to encode batch request", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeResolver, "Failed to build batch request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeResolver, "Batch metadata request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.NewAppError(utils.ErrCodeResolver,
			"Batch metadata request rejected",
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var result map[string]TxInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeResolver, "Failed to decode batch response", err.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"requested": len(hashes),
		"resolved":  len(result),
	}).Debug("Transaction metadata batch resolved")

	return result, nil
}
