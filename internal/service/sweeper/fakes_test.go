package sweeper

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aduersarius/polybet-sub009/internal/chain"
	"github.com/Aduersarius/polybet-sub009/internal/keys"
	"github.com/Aduersarius/polybet-sub009/internal/model"
	"github.com/Aduersarius/polybet-sub009/internal/service/health"
	"github.com/Aduersarius/polybet-sub009/internal/service/notify"
	"github.com/Aduersarius/polybet-sub009/pkg/config"
	"github.com/Aduersarius/polybet-sub009/pkg/errno"
	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var usdcContract = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

// ---------- store ----------

type fakeStore struct {
	mu        sync.Mutex
	deposits  map[uint64]*model.Deposit
	addresses map[string]model.Address

	listErr      error
	listCalls    int
	beforeUpdate func(d *model.Deposit)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deposits:  make(map[uint64]*model.Deposit),
		addresses: make(map[string]model.Address),
	}
}

func addrKey(userID uint64, currency string) string {
	return fmt.Sprintf("%d:%s", userID, currency)
}

func (f *fakeStore) ListPendingSweeps(_ context.Context, limit, maxRetries int) ([]model.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []model.Deposit
	for _, d := range f.deposits {
		if d.Status == model.DepositStatusPendingSweep && d.RetryCount < maxRetries {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) FindDepositAddress(_ context.Context, userID uint64, currency string) (*model.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addresses[addrKey(userID, currency)]
	if !ok {
		return nil, fmt.Errorf("%w: user=%d currency=%s", errno.ErrAddressNotFound, userID, currency)
	}
	return &a, nil
}

func (f *fakeStore) UpdatePending(_ context.Context, id uint64, mutate func(d *model.Deposit) error) (*model.Deposit, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.deposits[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: id=%d", errno.ErrDepositNotFound, id)
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate(stored)
	}
	if stored.Status.IsTerminal() {
		cp := *stored
		return &cp, false, nil
	}

	d := *stored
	if err := mutate(&d); err != nil {
		return nil, false, err
	}
	if d.RetryCount < stored.RetryCount {
		return nil, false, fmt.Errorf("retry_count rollback")
	}
	*stored = d
	cp := d
	return &cp, true, nil
}

func (f *fakeStore) get(id uint64) model.Deposit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.deposits[id]
}

// ---------- chain ----------

type transfer struct {
	from   common.Address
	to     common.Address
	amount *big.Int
}

type fakeChain struct {
	mu sync.Mutex

	master   common.Address
	token    map[common.Address]*big.Int
	native   map[common.Address]*big.Int
	gasPrice *big.Int
	gasLimit uint64

	transferErrs  []error // 按调用顺序消费
	alwaysFail    error
	nativeErr     error
	balanceErr    error
	transferCalls int
	transfers     []transfer
	nativeSends   []transfer
	gasViolations int
	seq           uint64

	// confirmTimeouts 大于 0 时下一笔 transfer 确认超时，发送方留在 pending 状态
	confirmTimeouts int
	timedOut        map[common.Hash]bool
	pending         map[common.Address]bool
	pendingErr      error
	// topUpShortfall 补 gas 实际到账比发送的少 (模拟被其他交易消耗)
	topUpShortfall *big.Int

	balanceGate    chan struct{}
	balanceEntered chan struct{}
}

func newFakeChain(master common.Address) *fakeChain {
	return &fakeChain{
		master:   master,
		token:    make(map[common.Address]*big.Int),
		native:   map[common.Address]*big.Int{master: new(big.Int).Mul(big.NewInt(10), big.NewInt(params.Ether))},
		gasPrice: big.NewInt(20 * params.GWei),
		gasLimit: 65000,
		timedOut: make(map[common.Hash]bool),
		pending:  make(map[common.Address]bool),
	}
}

func (c *fakeChain) setPending(a common.Address, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[a] = pending
}

func (c *fakeChain) HasPendingTx(_ context.Context, owner common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingErr != nil {
		return false, c.pendingErr
	}
	return c.pending[owner], nil
}

func (c *fakeChain) nextHash() common.Hash {
	c.seq++
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", c.seq)))
}

func balanceOf(m map[common.Address]*big.Int, a common.Address) *big.Int {
	if b, ok := m[a]; ok {
		return b
	}
	return new(big.Int)
}

func (c *fakeChain) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	if c.balanceEntered != nil {
		c.balanceEntered <- struct{}{}
	}
	if c.balanceGate != nil {
		<-c.balanceGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	return new(big.Int).Set(balanceOf(c.token, owner)), nil
}

func (c *fakeChain) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(balanceOf(c.native, owner)), nil
}

func (c *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) EstimateTokenTransferGas(context.Context, common.Address, common.Address, common.Address, *big.Int) (uint64, error) {
	return c.gasLimit, nil
}

func (c *fakeChain) SendNative(_ context.Context, from chain.Signer, to common.Address, value, gasPrice *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nativeErr != nil {
		return common.Hash{}, c.nativeErr
	}
	fee := new(big.Int).Mul(big.NewInt(int64(params.TxGas)), gasPrice)
	c.native[from.Address()] = new(big.Int).Sub(balanceOf(c.native, from.Address()), new(big.Int).Add(value, fee))
	credited := new(big.Int).Set(value)
	if c.topUpShortfall != nil {
		credited.Sub(credited, c.topUpShortfall)
	}
	c.native[to] = new(big.Int).Add(balanceOf(c.native, to), credited)
	c.nativeSends = append(c.nativeSends, transfer{from: from.Address(), to: to, amount: new(big.Int).Set(value)})
	return c.nextHash(), nil
}

func (c *fakeChain) SendTokenTransfer(_ context.Context, from chain.Signer, _ common.Address, to common.Address, amount *big.Int, fee chain.FeeQuote) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferCalls++

	required := new(big.Int).Mul(fee.Cost(), big.NewInt(2))
	if balanceOf(c.native, from.Address()).Cmp(required) < 0 {
		c.gasViolations++
	}

	if c.alwaysFail != nil {
		return common.Hash{}, c.alwaysFail
	}
	if len(c.transferErrs) > 0 {
		err := c.transferErrs[0]
		c.transferErrs = c.transferErrs[1:]
		return common.Hash{}, err
	}

	c.token[from.Address()] = new(big.Int).Sub(balanceOf(c.token, from.Address()), amount)
	c.token[to] = new(big.Int).Add(balanceOf(c.token, to), amount)
	c.native[from.Address()] = new(big.Int).Sub(balanceOf(c.native, from.Address()), fee.Cost())
	c.transfers = append(c.transfers, transfer{from: from.Address(), to: to, amount: new(big.Int).Set(amount)})
	hash := c.nextHash()
	if c.confirmTimeouts > 0 {
		c.confirmTimeouts--
		c.timedOut[hash] = true
		c.pending[from.Address()] = true
	}
	return hash, nil
}

func (c *fakeChain) WaitMined(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timedOut[hash] {
		return nil, fmt.Errorf("%w: %s", errno.ErrConfirmTimeout, hash.Hex())
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100), GasUsed: c.gasLimit}, nil
}

// ---------- notifier ----------

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notify.Event
	onNotify func(notify.Event)
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	hook := n.onNotify
	n.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (n *recordingNotifier) ofType(t notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ---------- harness ----------

type harness struct {
	store    *fakeStore
	chain    *fakeChain
	notifier *recordingNotifier
	state    *health.State
	metrics  *monitor.SweeperMetrics
	logs     *observer.ObservedLogs
	deriver  *keys.Deriver
	master   *keys.Signer
	cfg      config.SweeperConfig
	sweeper  *Sweeper
	base     time.Time
}

func testConfig() config.SweeperConfig {
	return config.SweeperConfig{
		PollInterval:     30 * time.Second,
		HealthInterval:   60 * time.Second,
		MaxRetries:       3,
		RetryBaseDelay:   time.Minute,
		BatchSize:        10,
		FailureThreshold: 5,
		RpcTimeout:       5 * time.Second,
		ConfirmTimeout:   5 * time.Second,
		GasMultiplier:    2,
	}
}

func newHarness(t *testing.T, mutate ...func(*config.SweeperConfig)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	deriver, err := keys.NewDeriver(testMnemonic, "")
	require.NoError(t, err)
	master, err := deriver.Derive(keys.MasterIndex)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		store:    newFakeStore(),
		chain:    newFakeChain(master.Address()),
		notifier: &recordingNotifier{},
		state:    health.NewState(cfg.PollInterval, cfg.FailureThreshold),
		metrics:  monitor.NewSweeperMetrics(prometheus.NewRegistry()),
		logs:     logs,
		deriver:  deriver,
		master:   master,
		cfg:      cfg,
		base:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tokens := &config.ChainConfig{Tokens: map[string]config.TokenConfig{
		"USDC": {Contract: usdcContract.Hex(), Decimals: 6},
	}}

	h.sweeper = New(Dependencies{
		Repo:     h.store,
		Chain:    h.chain,
		Keys:     deriver,
		Master:   master,
		Tokens:   tokens,
		Notifier: h.notifier,
		State:    h.state,
		Metrics:  h.metrics,
		Logger:   zap.New(core),
	}, cfg)
	return h
}

type depositFixture struct {
	id       uint64
	userID   uint64
	index    uint32
	currency string
	balance  int64
	retry    int
	created  time.Duration // 相对 base
	noAddr   bool
}

// addDeposit 创建充值记录、充值地址和链上余额，返回充值地址
func (h *harness) addDeposit(t *testing.T, s depositFixture) common.Address {
	t.Helper()
	if s.currency == "" {
		s.currency = "USDC"
	}

	child, err := h.deriver.Derive(s.index)
	require.NoError(t, err)

	h.store.deposits[s.id] = &model.Deposit{
		ID:         s.id,
		UserID:     s.userID,
		Currency:   s.currency,
		Status:     model.DepositStatusPendingSweep,
		RetryCount: s.retry,
		CreatedAt:  h.base.Add(s.created),
		UpdatedAt:  h.base.Add(s.created),
	}
	if !s.noAddr {
		h.store.addresses[addrKey(s.userID, s.currency)] = model.Address{
			UserID:      s.userID,
			Currency:    s.currency,
			Address:     child.Address().Hex(),
			HDPathIndex: s.index,
		}
	}
	h.chain.token[child.Address()] = big.NewInt(s.balance)
	return child.Address()
}

func (h *harness) run(t *testing.T) CycleResult {
	t.Helper()
	res, err := h.sweeper.RunCycle(context.Background())
	require.NoError(t, err)
	return res
}
