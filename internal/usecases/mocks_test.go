package usecases

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/everclear"
	"mark-operator.backend/internal/infrastructure/repositories"
)

const (
	testTicker      = "0xticker"
	testOriginChain = uint64(1)
	testDestChain   = uint64(10)
)

type testRepos struct {
	db      *gorm.DB
	earmark domainRepos.EarmarkRepository
	op      domainRepos.RebalanceOperationRepository
	swap    domainRepos.SwapOperationRepository
	uow     domainRepos.UnitOfWork
}

func newTestRepos(t *testing.T) *testRepos {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, repositories.Migrate(db), "migrate schema")
	return &testRepos{
		db:      db,
		earmark: repositories.NewEarmarkRepository(db),
		op:      repositories.NewRebalanceOperationRepository(db),
		swap:    repositories.NewSwapOperationRepository(db),
		uow:     repositories.NewUnitOfWork(db),
	}
}

// testChains configures a 6-decimal USDC-like asset on two chains.
func testChains() map[uint64]config.ChainConfig {
	return map[uint64]config.ChainConfig{
		testOriginChain: {
			ChainID:      testOriginChain,
			OwnerAddress: "0xowner1",
			Assets: []config.AssetConfig{
				{Symbol: "USDC", Address: "0xusdc1", Decimals: 6, TickerHash: testTicker},
			},
		},
		testDestChain: {
			ChainID:      testDestChain,
			OwnerAddress: "0xowner10",
			Assets: []config.AssetConfig{
				{Symbol: "USDC", Address: "0xusdc10", Decimals: 6, TickerHash: testTicker},
			},
		},
	}
}

func parseRoutes(t *testing.T, raw string) []config.RouteConfig {
	t.Helper()
	routes, err := config.ParseRoutes([]byte(raw))
	require.NoError(t, err)
	return routes
}

func testInvoice() *entities.Invoice {
	return &entities.Invoice{
		IntentID:           "0xinvoice",
		Owner:              "0xsomeoneelse",
		TickerHash:         testTicker,
		Amount:             big.NewInt(1_000_000),
		Origin:             testOriginChain,
		Destinations:       []uint64{testDestChain},
		HubInvoiceEnqueued: uint64(time.Now().Add(-time.Minute).Unix()),
	}
}

func e18(units int64) *big.Int {
	v := big.NewInt(units)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fakeChainService records submitted transactions and serves balances from
// a static table keyed by chain id and asset address.
type fakeChainService struct {
	mu        sync.Mutex
	balances  map[uint64]map[string]*big.Int
	submitted []*bridge.TxRequest
	submitErr error
	block     uint64
}

func newFakeChainService() *fakeChainService {
	return &fakeChainService{balances: make(map[uint64]map[string]*big.Int), block: 100}
}

func (f *fakeChainService) setBalance(chainID uint64, address string, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[chainID] == nil {
		f.balances[chainID] = make(map[string]*big.Int)
	}
	f.balances[chainID][address] = v
}

func (f *fakeChainService) SubmitAndMonitor(ctx context.Context, tx *bridge.TxRequest) (*entities.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return &entities.TxReceipt{
		TransactionHash: fmt.Sprintf("0xhash%d", len(f.submitted)),
		To:              tx.To,
		ChainID:         tx.ChainID,
		BlockNumber:     f.block,
		Status:          1,
	}, nil
}

func (f *fakeChainService) GetTransactionReceipt(ctx context.Context, chainID uint64, txHash string) (*entities.TxReceipt, error) {
	return &entities.TxReceipt{TransactionHash: txHash, ChainID: chainID, Status: 1}, nil
}

func (f *fakeChainService) GetBalance(ctx context.Context, chainID uint64, asset config.AssetConfig, owner string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if byAsset, ok := f.balances[chainID]; ok {
		if v, ok := byAsset[asset.Address]; ok {
			return new(big.Int).Set(v), nil
		}
	}
	return big.NewInt(0), nil
}

func (f *fakeChainService) CallView(ctx context.Context, chainID uint64, to string, data []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeChainService) LatestBlock(ctx context.Context, chainID uint64) (uint64, error) {
	return f.block, nil
}

func (f *fakeChainService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// fakeAdapter is a scriptable bridge adapter.
type fakeAdapter struct {
	kind bridge.Kind

	quoteFn     func(amount *big.Int) (*big.Int, error)
	sendErr     error
	ready       bool
	readyErr    error
	callback    *bridge.MemoTx
	callbackErr error
	// effective overrides the Rebalance-memo amount when set.
	effective *big.Int

	quoteCalls    int
	sendCalls     int
	readyCalls    int
	callbackCalls int

	readyRoutes    []entities.Route
	callbackRoutes []entities.Route
}

func (f *fakeAdapter) Kind() bridge.Kind { return f.kind }

func (f *fakeAdapter) Quote(ctx context.Context, amount *big.Int, route entities.Route) (*big.Int, error) {
	f.quoteCalls++
	if f.quoteFn != nil {
		return f.quoteFn(amount)
	}
	return new(big.Int).Set(amount), nil
}

func (f *fakeAdapter) Send(ctx context.Context, sender, recipient string, amount *big.Int, route entities.Route) ([]bridge.MemoTx, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return []bridge.MemoTx{
		{Memo: bridge.MemoApproval, Tx: &bridge.TxRequest{ChainID: route.Origin, To: route.Asset, Data: []byte{0x09}, Value: big.NewInt(0)}},
		{Memo: bridge.MemoRebalance, Tx: &bridge.TxRequest{ChainID: route.Origin, To: "0xbridge", Data: []byte{0x01}, Value: big.NewInt(0)}, EffectiveAmount: f.effective},
	}, nil
}

func (f *fakeAdapter) ReadyOnDestination(ctx context.Context, amount *big.Int, route entities.Route, originReceipt *entities.TxReceipt) (bool, error) {
	f.readyCalls++
	f.readyRoutes = append(f.readyRoutes, route)
	return f.ready, f.readyErr
}

func (f *fakeAdapter) DestinationCallback(ctx context.Context, route entities.Route, originReceipt *entities.TxReceipt) (*bridge.MemoTx, error) {
	f.callbackCalls++
	f.callbackRoutes = append(f.callbackRoutes, route)
	return f.callback, f.callbackErr
}

// fakeSwapAdapter adds the scriptable swap capability.
type fakeSwapAdapter struct {
	fakeAdapter

	supports     bool
	info         *bridge.ExchangeInfo
	infoErr      error
	swapQuoteFn  func(amount *big.Int) (*bridge.SwapQuote, error)
	execResult   *bridge.SwapResult
	execErr      error
	statusResult *bridge.SwapResult
	statusErr    error

	execCalls int
}

func (f *fakeSwapAdapter) SupportsSwap(fromSymbol, toSymbol string) bool { return f.supports }

func (f *fakeSwapAdapter) SwapExchangeInfo(ctx context.Context, fromSymbol, toSymbol string) (*bridge.ExchangeInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &bridge.ExchangeInfo{MinAmount: big.NewInt(1), MaxAmount: e18(1000)}, nil
}

func (f *fakeSwapAdapter) SwapQuote(ctx context.Context, fromSymbol, toSymbol string, amount *big.Int) (*bridge.SwapQuote, error) {
	if f.swapQuoteFn != nil {
		return f.swapQuoteFn(amount)
	}
	return &bridge.SwapQuote{
		QuoteID:    "q1",
		FromSymbol: fromSymbol,
		ToSymbol:   toSymbol,
		FromAmount: new(big.Int).Set(amount),
		ToAmount:   new(big.Int).Set(amount),
		Rate:       "1",
	}, nil
}

func (f *fakeSwapAdapter) ExecuteSwap(ctx context.Context, quote *bridge.SwapQuote) (*bridge.SwapResult, error) {
	f.execCalls++
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.execResult != nil {
		return f.execResult, nil
	}
	return &bridge.SwapResult{OrderID: "order1", Status: bridge.SwapOrderPending}, nil
}

func (f *fakeSwapAdapter) SwapStatus(ctx context.Context, orderID string) (*bridge.SwapResult, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.statusResult != nil {
		return f.statusResult, nil
	}
	return &bridge.SwapResult{OrderID: orderID, Status: bridge.SwapOrderPending}, nil
}

// fakeHub is a scriptable HubClient.
type fakeHub struct {
	invoice       *entities.Invoice
	invoiceErr    error
	minAmounts    map[uint64]*big.Int
	minAmountsErr error
	economy       map[uint64]*everclear.EconomyData
}

func (f *fakeHub) GetInvoice(ctx context.Context, intentID string) (*entities.Invoice, error) {
	return f.invoice, f.invoiceErr
}

func (f *fakeHub) GetMinAmounts(ctx context.Context, intentID string) (map[uint64]*big.Int, error) {
	return f.minAmounts, f.minAmountsErr
}

func (f *fakeHub) GetEconomyData(ctx context.Context, domain uint64, tickerHash string) (*everclear.EconomyData, error) {
	if e, ok := f.economy[domain]; ok {
		return e, nil
	}
	return &everclear.EconomyData{Custodied: big.NewInt(0), Incoming: big.NewInt(0)}, nil
}

// fakePurchaseCache is an in-memory PurchaseCache.
type fakePurchaseCache struct {
	mu              sync.Mutex
	data            map[string][]byte
	purchasePaused  bool
	rebalancePaused bool
	removed         []string
}

func newFakePurchaseCache() *fakePurchaseCache {
	return &fakePurchaseCache{data: make(map[string][]byte)}
}

func (f *fakePurchaseCache) GetPurchases(ctx context.Context, invoiceID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[invoiceID], nil
}

func (f *fakePurchaseCache) SetPurchases(ctx context.Context, invoiceID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[invoiceID] = payload
	return nil
}

func (f *fakePurchaseCache) RemovePurchases(ctx context.Context, invoiceIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range invoiceIDs {
		delete(f.data, id)
		f.removed = append(f.removed, id)
	}
	return nil
}

func (f *fakePurchaseCache) IsPurchasePaused(ctx context.Context) (bool, error) {
	return f.purchasePaused, nil
}

func (f *fakePurchaseCache) IsRebalancePaused(ctx context.Context) (bool, error) {
	return f.rebalancePaused, nil
}

// fakePurchaser records the minAmounts it was handed.
type fakePurchaser struct {
	records    []entities.PurchaseRecord
	err        error
	calls      int
	minAmounts map[uint64]*big.Int
}

func (f *fakePurchaser) SplitAndSendIntents(
	ctx context.Context,
	invoice *entities.Invoice,
	balances map[string]map[uint64]*big.Int,
	custodied map[uint64]*big.Int,
	minAmounts map[uint64]*big.Int,
) ([]entities.PurchaseRecord, error) {
	f.calls++
	f.minAmounts = minAmounts
	return f.records, f.err
}

func testRebalanceConfig() config.RebalanceConfig {
	return config.RebalanceConfig{
		CallbackInterval: time.Second,
		ExpiryInterval:   time.Minute,
		OperationTTL:     time.Hour,
		MaxInvoiceAge:    6 * time.Hour,
		RetryAfterEvent:  time.Minute,
		RetryAfterDefer:  10 * time.Second,
	}
}
