package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	"mark-operator.backend/pkg/logger"
)

// ChainService is the on-chain surface the orchestration core depends on:
// submitting transactions through the signer and reading chain state.
type ChainService interface {
	// SubmitAndMonitor sends the transaction via the chain's signer and
	// blocks until it is confirmed. The returned receipt reflects the
	// mined transaction; a reverted transaction is an error.
	SubmitAndMonitor(ctx context.Context, tx *bridge.TxRequest) (*entities.TxReceipt, error)
	GetTransactionReceipt(ctx context.Context, chainID uint64, txHash string) (*entities.TxReceipt, error)
	// GetBalance reads the owner's balance of the asset in native decimals.
	GetBalance(ctx context.Context, chainID uint64, asset config.AssetConfig, owner string) (*big.Int, error)
	CallView(ctx context.Context, chainID uint64, to string, data []byte) ([]byte, error)
	LatestBlock(ctx context.Context, chainID uint64) (uint64, error)
}

// nodeReader is the read-side of an EVM node connection.
type nodeReader interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error)
	CallView(ctx context.Context, to string, data []byte) ([]byte, error)
}

// EVMChainService implements ChainService over JSON-RPC nodes plus the
// signer sidecar.
type EVMChainService struct {
	chains        map[uint64]config.ChainConfig
	factory       *ClientFactory
	signer        *SignerClient
	confirmations uint64
	pollInterval  time.Duration
	monitorWindow time.Duration

	mu      sync.RWMutex
	readers map[uint64]nodeReader
}

// NewEVMChainService creates a chain service for the configured chains.
func NewEVMChainService(chains map[uint64]config.ChainConfig, factory *ClientFactory, signer *SignerClient) *EVMChainService {
	return &EVMChainService{
		chains:        chains,
		factory:       factory,
		signer:        signer,
		confirmations: 2,
		pollInterval:  3 * time.Second,
		monitorWindow: 30 * time.Second,
		readers:       make(map[uint64]nodeReader),
	}
}

// RegisterReader injects a node reader for a chain. Useful for
// deterministic unit tests.
func (s *EVMChainService) RegisterReader(chainID uint64, reader nodeReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[chainID] = reader
}

// SetMonitoring overrides the confirmation depth and polling cadence.
func (s *EVMChainService) SetMonitoring(confirmations uint64, pollInterval, window time.Duration) {
	s.confirmations = confirmations
	s.pollInterval = pollInterval
	s.monitorWindow = window
}

func (s *EVMChainService) reader(chainID uint64) (nodeReader, error) {
	s.mu.RLock()
	reader, ok := s.readers[chainID]
	s.mu.RUnlock()
	if ok {
		return reader, nil
	}

	chain, ok := s.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", domainerrors.ErrChainNotConfigured, chainID)
	}
	client, err := s.factory.GetEVMClient(chain.RPCURL)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.readers[chainID] = client
	s.mu.Unlock()
	return client, nil
}

// SubmitAndMonitor sends the transaction through the signer, then polls
// for the receipt until it has the required confirmation depth.
func (s *EVMChainService) SubmitAndMonitor(ctx context.Context, tx *bridge.TxRequest) (*entities.TxReceipt, error) {
	chain, ok := s.chains[tx.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", domainerrors.ErrChainNotConfigured, tx.ChainID)
	}

	hash, err := s.signer.SignAndSend(ctx, chain.SignerURL, tx)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "transaction submitted",
		zap.Uint64("chain_id", tx.ChainID),
		zap.String("tx_hash", hash),
		zap.String("to", tx.To))

	reader, err := s.reader(tx.ChainID)
	if err != nil {
		return nil, err
	}

	monitorCtx, cancel := context.WithTimeout(ctx, s.monitorWindow)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := reader.GetTransactionReceipt(monitorCtx, hash)
		if err == nil && receipt != nil {
			head, headErr := reader.GetBlockNumber(monitorCtx)
			if headErr == nil && head+1 >= receipt.BlockNumber.Uint64()+s.confirmations {
				if receipt.Status != types.ReceiptStatusSuccessful {
					return nil, fmt.Errorf("%w: tx %s reverted on chain %d", domainerrors.ErrTransactionFailed, hash, tx.ChainID)
				}
				return convertReceipt(tx.ChainID, hash, tx.To, receipt), nil
			}
		}

		select {
		case <-monitorCtx.Done():
			return nil, fmt.Errorf("%w: tx %s not confirmed on chain %d: %v",
				domainerrors.ErrTransactionFailed, hash, tx.ChainID, monitorCtx.Err())
		case <-ticker.C:
		}
	}
}

// GetTransactionReceipt reads and converts a mined receipt.
func (s *EVMChainService) GetTransactionReceipt(ctx context.Context, chainID uint64, txHash string) (*entities.TxReceipt, error) {
	reader, err := s.reader(chainID)
	if err != nil {
		return nil, err
	}
	receipt, err := reader.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	return convertReceipt(chainID, txHash, "", receipt), nil
}

// GetBalance reads the owner's balance of the asset in native decimals.
func (s *EVMChainService) GetBalance(ctx context.Context, chainID uint64, asset config.AssetConfig, owner string) (*big.Int, error) {
	reader, err := s.reader(chainID)
	if err != nil {
		return nil, err
	}
	if asset.IsNative {
		return reader.GetBalance(ctx, owner)
	}
	return reader.GetTokenBalance(ctx, asset.Address, owner)
}

// CallView executes a read-only contract call on the chain.
func (s *EVMChainService) CallView(ctx context.Context, chainID uint64, to string, data []byte) ([]byte, error) {
	reader, err := s.reader(chainID)
	if err != nil {
		return nil, err
	}
	return reader.CallView(ctx, to, data)
}

// LatestBlock returns the chain head block number.
func (s *EVMChainService) LatestBlock(ctx context.Context, chainID uint64) (uint64, error) {
	reader, err := s.reader(chainID)
	if err != nil {
		return 0, err
	}
	return reader.GetBlockNumber(ctx)
}

func convertReceipt(chainID uint64, txHash, to string, receipt *types.Receipt) *entities.TxReceipt {
	out := &entities.TxReceipt{
		TransactionHash: txHash,
		To:              to,
		ChainID:         chainID,
		Status:          receipt.Status,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out
}
