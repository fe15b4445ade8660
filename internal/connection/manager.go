package connection

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/config"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// Manager defines the Starknet connection manager interface
type Manager interface {
	GetClient(ctx context.Context) (*rpc.Client, error)
	HealthCheck(ctx context.Context) error
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

// ConnectionManager implements the Manager interface around a JSON-RPC
// client. Starknet nodes speak plain JSON-RPC 2.0, so the generic rpc
// client is used with starknet_* methods.
type ConnectionManager struct {
	config *config.StarknetConfig
	logger *logrus.Logger

	mu              sync.RWMutex
	client          *rpc.Client
	stats           ConnectionStats
	lastHealthCheck time.Time
	isHealthy       bool
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.StarknetConfig) *ConnectionManager {
	return &ConnectionManager{
		config: cfg,
		logger: utils.GetLogger(),
		stats: ConnectionStats{
			CurrentURL: cfg.RPCURL,
		},
	}
}

// Connect establishes the RPC connection and verifies it
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	_, err := cm.GetClient(ctx)
	if err != nil {
		return err
	}
	return cm.HealthCheck(ctx)
}

// GetClient returns the current client, dialing if necessary
func (cm *ConnectionManager) GetClient(ctx context.Context) (*rpc.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client != nil {
		cm.mu.Lock()
		cm.stats.TotalRequests++
		cm.mu.Unlock()
		return client, nil
	}

	return cm.dial(ctx)
}

// dial establishes a new connection with retries
func (cm *ConnectionManager) dial(ctx context.Context) (*rpc.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	var lastErr error
	for attempt := 0; attempt <= cm.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}

		cm.logger.WithFields(logrus.Fields{
			"url":     cm.config.RPCURL,
			"attempt": attempt + 1,
		}).Info("Dialing Starknet RPC")

		dialCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
		client, err := rpc.DialContext(dialCtx, cm.config.RPCURL)
		cancel()
		if err != nil {
			cm.logger.WithError(err).Warn("Starknet RPC dial failed")
			cm.stats.FailedRequests++
			lastErr = err
			continue
		}

		cm.client = client
		cm.stats.Reconnects++
		cm.stats.LastConnectedAt = time.Now()
		cm.stats.CurrentURL = cm.config.RPCURL
		return client, nil
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection,
		"Failed to connect to Starknet RPC", lastErr.Error())
}

// HealthCheck verifies the node responds to a block number query
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	block, err := cm.GetLatestBlockNumber(ctx)

	cm.mu.Lock()
	cm.lastHealthCheck = time.Now()
	cm.stats.LastHealthCheck = cm.lastHealthCheck
	cm.isHealthy = err == nil
	cm.stats.IsHealthy = cm.isHealthy
	if err == nil {
		cm.stats.LatestBlock = block
	}
	cm.mu.Unlock()

	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Health check failed", err.Error())
	}
	return nil
}

// GetLatestBlockNumber returns the current chain head block number
func (cm *ConnectionManager) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	client, err := cm.GetClient(ctx)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	var blockNumber uint64
	if err := client.CallContext(callCtx, &blockNumber, "starknet_blockNumber"); err != nil {
		cm.recordFailure()
		return 0, utils.NewAppError(utils.ErrCodeBlockchain,
			"Failed to get latest block number", err.Error())
	}

	return blockNumber, nil
}

// IsConnected reports whether the last health check succeeded
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.isHealthy
}

// Close closes the RPC connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
		cm.logger.Info("Starknet RPC connection closed")
	}
	return nil
}

// Stats returns a snapshot of connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

func (cm *ConnectionManager) recordFailure() {
	cm.mu.Lock()
	cm.stats.FailedRequests++
	cm.mu.Unlock()
}
