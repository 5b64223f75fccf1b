package usecases

import (
	"context"
	"math/big"

	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/entities"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/blockchain"
)

// earmarkReservingStatuses are the states whose minAmount counts as
// reserved funds on the designated chain.
var earmarkReservingStatuses = []entities.EarmarkStatus{
	entities.EarmarkStatusPending,
	entities.EarmarkStatusReady,
}

// inflightStatuses are the operation states whose amount counts as already
// travelling towards (or landed on) the destination.
var inflightStatuses = []entities.OperationStatus{
	entities.OperationStatusPending,
	entities.OperationStatusAwaitingCallback,
	entities.OperationStatusCompleted,
}

// Accounting computes the operator's balance sheet: on-chain holdings per
// (ticker, chain) and how much of them is already spoken for.
type Accounting struct {
	chains       map[uint64]config.ChainConfig
	chainService blockchain.ChainService
	earmarkRepo  domainRepos.EarmarkRepository
	opRepo       domainRepos.RebalanceOperationRepository
}

// NewAccounting creates a new accounting service
func NewAccounting(
	chains map[uint64]config.ChainConfig,
	chainService blockchain.ChainService,
	earmarkRepo domainRepos.EarmarkRepository,
	opRepo domainRepos.RebalanceOperationRepository,
) *Accounting {
	return &Accounting{
		chains:       chains,
		chainService: chainService,
		earmarkRepo:  earmarkRepo,
		opRepo:       opRepo,
	}
}

// MarkBalances reads the owner's balance of every configured asset on
// every configured chain, as map[tickerHash]map[chainID] in 18-dec units.
func (a *Accounting) MarkBalances(ctx context.Context) (map[string]map[uint64]*big.Int, error) {
	out := make(map[string]map[uint64]*big.Int)
	for chainID, chain := range a.chains {
		owner := chain.Recipient()
		for _, asset := range chain.Assets {
			native, err := a.chainService.GetBalance(ctx, chainID, asset, owner)
			if err != nil {
				return nil, err
			}
			byChain, ok := out[asset.TickerHash]
			if !ok {
				byChain = make(map[uint64]*big.Int)
				out[asset.TickerHash] = byChain
			}
			byChain[chainID] = To18(native, asset.Decimals)
		}
	}
	return out, nil
}

// AvailableBalance is the mark balance minus whatever is already committed:
// max(earmarked, inflight). The two totals double-count the same funds
// (once reserved, once travelling), so taking the max never understates the
// commitment while never double-subtracting.
func (a *Accounting) AvailableBalance(ctx context.Context, chainID uint64, tickerHash string, markBalance *big.Int) (*big.Int, error) {
	earmarked, err := a.earmarkedTotal(ctx, chainID, tickerHash)
	if err != nil {
		return nil, err
	}
	inflight, err := a.inflightTotal(ctx, chainID, tickerHash)
	if err != nil {
		return nil, err
	}

	committed := earmarked
	if inflight.Cmp(committed) > 0 {
		committed = inflight
	}

	available := new(big.Int).Sub(markBalance, committed)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return available, nil
}

func (a *Accounting) earmarkedTotal(ctx context.Context, chainID uint64, tickerHash string) (*big.Int, error) {
	earmarks, err := a.earmarkRepo.List(ctx, domainRepos.EarmarkFilter{
		Statuses:                earmarkReservingStatuses,
		DesignatedPurchaseChain: chainID,
	})
	if err != nil {
		return nil, err
	}

	total := big.NewInt(0)
	for _, e := range earmarks {
		if e.TickerHash == tickerHash {
			total.Add(total, e.MinAmount)
		}
	}
	return total, nil
}

func (a *Accounting) inflightTotal(ctx context.Context, chainID uint64, tickerHash string) (*big.Int, error) {
	ops, _, err := a.opRepo.List(ctx, domainRepos.OperationFilter{
		Statuses:           inflightStatuses,
		DestinationChainID: chainID,
		TickerHash:         tickerHash,
	})
	if err != nil {
		return nil, err
	}

	activeEarmarks, err := a.earmarkRepo.List(ctx, domainRepos.EarmarkFilter{
		Statuses: entities.ActiveEarmarkStatuses,
	})
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(activeEarmarks))
	for _, e := range activeEarmarks {
		active[e.ID.String()] = true
	}

	total := big.NewInt(0)
	for _, op := range ops {
		// Only invoice-driven operations whose earmark is still live count;
		// a completed earmark's funds are back in the mark balance.
		if op.EarmarkID == nil || !active[op.EarmarkID.String()] {
			continue
		}
		decimals := a.originDecimals(op)
		total.Add(total, To18(op.Amount, decimals))
	}
	return total, nil
}

func (a *Accounting) originDecimals(op *entities.RebalanceOperation) uint8 {
	if chain, ok := a.chains[op.OriginChainID]; ok {
		if asset, ok := chain.AssetByTicker(op.TickerHash); ok {
			return asset.Decimals
		}
	}
	return CanonicalDecimals
}
