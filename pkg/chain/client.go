// Package chain implements the uniform read/write surface over the JSON-RPC
// provider. One client is produced per session; signing capability depends on
// the provider the session was connected with.
package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"tokentrackr/pkg/models"
	"tokentrackr/pkg/signer"
	"tokentrackr/pkg/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var log = logging.Logger("chain")

const (
	nativeTransferGas  = 21000
	tokenTransferGas   = 90000
	approveGas         = 60000
	confirmPollEvery   = 2 * time.Second
	confirmWaitTimeout = 3 * time.Minute
)

// BlockSource answers "which block was mined closest to this time". Backed by
// the block-indexing API when an API key is configured.
type BlockSource interface {
	BlockNumberByTime(ctx context.Context, target time.Time) (uint64, error)
}

// Client is the read/write surface the rest of the system uses regardless of
// which provider backs the session.
type Client interface {
	ChainID() *big.Int
	NativeBalance(ctx context.Context, owner string, block *big.Int) (string, error)
	TokenBalance(ctx context.Context, token, owner string, block *big.Int) (string, error)
	TokenMetadata(ctx context.Context, token string) (models.TokenDescriptor, error)
	Allowance(ctx context.Context, token, owner, spender string) (string, error)
	Approve(ctx context.Context, token, spender, amount string) (*models.TransferReceipt, error)
	SendNative(ctx context.Context, to, amount string) (*models.TransferReceipt, error)
	SendToken(ctx context.Context, token, to, amount string) (*models.TransferReceipt, error)
	BlockNumberNear(ctx context.Context, target time.Time) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CanSign() bool
	Close()
}

// EthClient implements Client over a go-ethereum ethclient.
type EthClient struct {
	eth     *ethclient.Client
	chainID *big.Int
	signer  signer.Provider // nil for read-only sessions
	timeout time.Duration
	blocks  BlockSource // nil when no indexer is configured

	avgBlockSeconds float64

	mu       sync.Mutex
	decimals map[string]int // token address (lower) -> resolved decimals
}

// Option configures an EthClient.
type Option func(*EthClient)

// WithSigner attaches a signing provider; without one the client is
// read-only.
func WithSigner(p signer.Provider) Option {
	return func(c *EthClient) { c.signer = p }
}

// WithBlockSource attaches an exact block-from-time source, used in
// preference to the linear approximation.
func WithBlockSource(bs BlockSource) Option {
	return func(c *EthClient) { c.blocks = bs }
}

// WithCallTimeout bounds every provider call. Timed-out calls surface as
// ProviderTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *EthClient) { c.timeout = d }
}

// WithAverageBlockTime overrides the block interval used by the linear
// block-from-date approximation.
func WithAverageBlockTime(seconds float64) Option {
	return func(c *EthClient) { c.avgBlockSeconds = seconds }
}

// Dial connects to the RPC endpoint and verifies the chain id.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*EthClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(models.ErrProviderError, err.Error())
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, normalize(err)
	}
	c := &EthClient{
		eth:             eth,
		chainID:         chainID,
		timeout:         30 * time.Second,
		avgBlockSeconds: 12,
		decimals:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromBackend wraps an already-dialed ethclient. Used by tests and by the
// session manager when the signer shares the connection.
func NewFromBackend(eth *ethclient.Client, chainID *big.Int, opts ...Option) *EthClient {
	c := &EthClient{
		eth:             eth,
		chainID:         chainID,
		timeout:         30 * time.Second,
		avgBlockSeconds: 12,
		decimals:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EthClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EthClient) CanSign() bool {
	return c.signer != nil
}

// Backend exposes the underlying ethclient for providers that broadcast
// through the shared connection.
func (c *EthClient) Backend() *ethclient.Client {
	return c.eth
}

func (c *EthClient) Close() {
	if c.signer != nil {
		c.signer.Close()
	}
	c.eth.Close()
}

func (c *EthClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// normalize maps raw provider failures onto the stable error kinds. Errors
// that already carry a kind pass through untouched.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if models.ErrorKind(err) != "ProviderError" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(models.ErrProviderTimeout, err.Error())
	}
	return errors.Wrap(models.ErrProviderError, err.Error())
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

// NativeBalance returns the native balance of owner at the given block (nil
// for latest) as a human-scaled decimal string.
func (c *EthClient) NativeBalance(ctx context.Context, owner string, block *big.Int) (string, error) {
	raw, err := c.rawNativeBalance(ctx, owner, block)
	if err != nil {
		return "", err
	}
	return utils.ScaleDown(raw, 18), nil
}

func (c *EthClient) rawNativeBalance(ctx context.Context, owner string, block *big.Int) (*big.Int, error) {
	if !ValidAddress(owner) {
		return nil, errors.Wrapf(models.ErrInvalidAddress, "%q", owner)
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	raw, err := c.eth.BalanceAt(cctx, common.HexToAddress(owner), block)
	if err != nil {
		return nil, normalize(err)
	}
	return raw, nil
}

// TokenBalance resolves decimals() (cached per token) then balanceOf and
// returns a human-scaled decimal string. Fails with NotAnErc20 when either
// call reverts or returns malformed data.
func (c *EthClient) TokenBalance(ctx context.Context, token, owner string, block *big.Int) (string, error) {
	raw, decimals, err := c.rawTokenBalance(ctx, token, owner, block)
	if err != nil {
		return "", err
	}
	return utils.ScaleDown(raw, decimals), nil
}

func (c *EthClient) rawTokenBalance(ctx context.Context, token, owner string, block *big.Int) (*big.Int, int, error) {
	if !ValidAddress(token) || !ValidAddress(owner) {
		return nil, 0, errors.Wrapf(models.ErrInvalidAddress, "token %q owner %q", token, owner)
	}
	decimals, err := c.Decimals(ctx, token)
	if err != nil {
		return nil, 0, err
	}
	data := encodeCall(selectorBalanceOf, addressArg(common.HexToAddress(owner)))
	out, err := c.contractCall(ctx, token, data, block)
	if err != nil {
		if isRevert(err) {
			return nil, 0, errors.Wrap(models.ErrNotAnErc20, err.Error())
		}
		return nil, 0, normalize(err)
	}
	raw, ok := decodeUint256(out)
	if !ok {
		return nil, 0, errors.Wrapf(models.ErrNotAnErc20, "balanceOf returned %d bytes", len(out))
	}
	return raw, decimals, nil
}

// Decimals resolves a token's decimals, caching the result for the life of
// the client. A token that reverts on decimals() gets the explicit fallback
// of 18; transport failures are not cached.
func (c *EthClient) Decimals(ctx context.Context, token string) (int, error) {
	key := strings.ToLower(token)
	c.mu.Lock()
	if d, ok := c.decimals[key]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	out, err := c.contractCall(ctx, token, encodeCall(selectorDecimals), nil)
	decimals := 18
	switch {
	case err == nil && len(out) >= 32:
		// uint256 straight from the contract; anything past 77 (the full
		// range of a uint256 in base 10) is garbage, keep the fallback.
		if v, _ := decodeUint256(out); v.IsInt64() && v.Int64() <= 77 {
			decimals = int(v.Int64())
		}
	case err == nil || isRevert(err):
		// decimals() unimplemented; keep the fallback
	default:
		return 0, normalize(err)
	}

	c.mu.Lock()
	c.decimals[key] = decimals
	c.mu.Unlock()
	return decimals, nil
}

// TokenMetadata reads name/symbol/decimals from the contract. Fails with
// NotAnErc20 when name or symbol is missing; a missing decimals() falls back
// to 18.
func (c *EthClient) TokenMetadata(ctx context.Context, token string) (models.TokenDescriptor, error) {
	if !ValidAddress(token) {
		return models.TokenDescriptor{}, errors.Wrapf(models.ErrInvalidAddress, "%q", token)
	}

	nameOut, err := c.contractCall(ctx, token, encodeCall(selectorName), nil)
	if err != nil {
		if isRevert(err) {
			return models.TokenDescriptor{}, errors.Wrap(models.ErrNotAnErc20, err.Error())
		}
		return models.TokenDescriptor{}, normalize(err)
	}
	name, ok := decodeString(nameOut)
	if !ok || name == "" {
		return models.TokenDescriptor{}, errors.Wrap(models.ErrNotAnErc20, "name() returned no data")
	}

	symbolOut, err := c.contractCall(ctx, token, encodeCall(selectorSymbol), nil)
	if err != nil {
		if isRevert(err) {
			return models.TokenDescriptor{}, errors.Wrap(models.ErrNotAnErc20, err.Error())
		}
		return models.TokenDescriptor{}, normalize(err)
	}
	symbol, ok := decodeString(symbolOut)
	if !ok || symbol == "" {
		return models.TokenDescriptor{}, errors.Wrap(models.ErrNotAnErc20, "symbol() returned no data")
	}

	decimals, err := c.Decimals(ctx, token)
	if err != nil {
		return models.TokenDescriptor{}, err
	}

	return models.TokenDescriptor{
		Address:  common.HexToAddress(token).Hex(),
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
	}, nil
}

// Allowance returns the amount owner has approved spender to spend, as a
// human-scaled decimal string.
func (c *EthClient) Allowance(ctx context.Context, token, owner, spender string) (string, error) {
	if !ValidAddress(token) || !ValidAddress(owner) || !ValidAddress(spender) {
		return "", errors.Wrap(models.ErrInvalidAddress, "allowance check")
	}
	decimals, err := c.Decimals(ctx, token)
	if err != nil {
		return "", err
	}
	data := encodeCall(selectorAllowance,
		addressArg(common.HexToAddress(owner)),
		addressArg(common.HexToAddress(spender)))
	out, err := c.contractCall(ctx, token, data, nil)
	if err != nil {
		if isRevert(err) {
			return "", errors.Wrap(models.ErrNotAnErc20, err.Error())
		}
		return "", normalize(err)
	}
	raw, ok := decodeUint256(out)
	if !ok {
		return "", errors.Wrapf(models.ErrNotAnErc20, "allowance returned %d bytes", len(out))
	}
	return utils.ScaleDown(raw, decimals), nil
}

// Approve submits an ERC-20 approve and waits for one confirmation.
func (c *EthClient) Approve(ctx context.Context, token, spender, amount string) (*models.TransferReceipt, error) {
	if c.signer == nil {
		return nil, models.ErrReadOnlySession
	}
	if !ValidAddress(token) || !ValidAddress(spender) {
		return nil, errors.Wrap(models.ErrInvalidAddress, "approve")
	}
	decimals, err := c.Decimals(ctx, token)
	if err != nil {
		return nil, err
	}
	raw, ok := utils.ScaleUp(amount, decimals)
	if !ok {
		return nil, errors.Wrapf(models.ErrMissingInput, "amount %q", amount)
	}
	data := encodeCall(selectorApprove, addressArg(common.HexToAddress(spender)), uint256Arg(raw))
	tokenAddr := common.HexToAddress(token)
	return c.submit(ctx, &tokenAddr, nil, data, approveGas, amount)
}

// SendNative transfers the native asset and waits for one confirmation. The
// balance is pre-checked so a doomed transaction is never submitted.
func (c *EthClient) SendNative(ctx context.Context, to, amount string) (*models.TransferReceipt, error) {
	if c.signer == nil {
		return nil, models.ErrReadOnlySession
	}
	if !ValidAddress(to) {
		return nil, errors.Wrapf(models.ErrInvalidAddress, "%q", to)
	}
	value, ok := utils.ScaleUp(amount, 18)
	if !ok {
		return nil, errors.Wrapf(models.ErrMissingInput, "amount %q", amount)
	}

	from := c.signer.Address()
	balance, err := c.rawNativeBalance(ctx, from.Hex(), nil)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	cost := new(big.Int).Add(value, new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGas)))
	if balance.Cmp(cost) < 0 {
		return nil, errors.Wrapf(models.ErrInsufficientFunds, "balance %s, need %s", balance, cost)
	}

	toAddr := common.HexToAddress(to)
	return c.submit(ctx, &toAddr, value, nil, nativeTransferGas, amount)
}

// SendToken transfers an ERC-20 amount and waits for one confirmation.
func (c *EthClient) SendToken(ctx context.Context, token, to, amount string) (*models.TransferReceipt, error) {
	if c.signer == nil {
		return nil, models.ErrReadOnlySession
	}
	if !ValidAddress(token) || !ValidAddress(to) {
		return nil, errors.Wrap(models.ErrInvalidAddress, "token transfer")
	}

	from := c.signer.Address()
	balanceRaw, decimals, err := c.rawTokenBalance(ctx, token, from.Hex(), nil)
	if err != nil {
		return nil, err
	}
	raw, ok := utils.ScaleUp(amount, decimals)
	if !ok {
		return nil, errors.Wrapf(models.ErrMissingInput, "amount %q", amount)
	}
	if balanceRaw.Cmp(raw) < 0 {
		return nil, errors.Wrapf(models.ErrInsufficientFunds, "token balance %s, need %s", balanceRaw, raw)
	}

	data := encodeCall(selectorTransfer, addressArg(common.HexToAddress(to)), uint256Arg(raw))
	tokenAddr := common.HexToAddress(token)
	return c.submit(ctx, &tokenAddr, nil, data, tokenTransferGas, amount)
}

func (c *EthClient) submit(ctx context.Context, to *common.Address, value *big.Int, data []byte, gasLimit uint64, humanValue string) (*models.TransferReceipt, error) {
	from := c.signer.Address()

	cctx, cancel := c.callCtx(ctx)
	nonce, err := c.eth.PendingNonceAt(cctx, from)
	cancel()
	if err != nil {
		return nil, normalize(err)
	}
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	if value == nil {
		value = new(big.Int)
	}
	hash, err := c.signer.SubmitTransaction(ctx, signer.TxRequest{
		From:     from,
		To:       to,
		Value:    value,
		Data:     data,
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		ChainID:  c.chainID,
	})
	if err != nil {
		return nil, normalize(err)
	}
	log.Infow("transaction submitted", "hash", hash.Hex(), "to", to.Hex())

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return nil, err
	}

	gwei := new(big.Float).SetInt(receipt.EffectiveGasPrice)
	gwei.Quo(gwei, big.NewFloat(1e9))

	out := &models.TransferReceipt{
		Hash:                  hash.Hex(),
		From:                  from.Hex(),
		To:                    to.Hex(),
		Value:                 humanValue,
		GasUsed:               receipt.GasUsed,
		EffectiveGasPriceGwei: gwei.Text('f', 2),
		BlockNumber:           receipt.BlockNumber.Uint64(),
	}
	return out, nil
}

func (c *EthClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, confirmWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollEvery)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(wctx, hash)
		if err == nil {
			if receipt.Status == 0 {
				return nil, errors.Wrapf(models.ErrTransactionReverted, "tx %s", hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, normalize(err)
		}
		select {
		case <-ticker.C:
		case <-wctx.Done():
			return nil, errors.Wrapf(models.ErrProviderTimeout, "waiting for tx %s", hash.Hex())
		}
	}
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	price, err := c.eth.SuggestGasPrice(cctx)
	if err != nil {
		return nil, normalize(err)
	}
	return price, nil
}

// BlockNumberNear approximates the block mined closest to target. With an
// indexer configured the lookup is exact; otherwise it extrapolates linearly
// from the latest header using the average block interval, which is accurate
// to within a few blocks per day of distance from now and drifts further as
// actual block times deviate from the average. Never returns a block below 0.
func (c *EthClient) BlockNumberNear(ctx context.Context, target time.Time) (uint64, error) {
	if c.blocks != nil {
		n, err := c.blocks.BlockNumberByTime(ctx, target)
		if err == nil {
			return n, nil
		}
		log.Warnw("indexer lookup failed, using approximation", "err", err)
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	header, err := c.eth.HeaderByNumber(cctx, nil)
	if err != nil {
		return 0, normalize(err)
	}

	latestTime := int64(header.Time)
	latestNum := header.Number.Uint64()
	if target.Unix() >= latestTime {
		return latestNum, nil
	}
	blocksAgo := uint64(float64(latestTime-target.Unix()) / c.avgBlockSeconds)
	if blocksAgo >= latestNum {
		return 0, nil
	}
	return latestNum - blocksAgo, nil
}

func (c *EthClient) contractCall(ctx context.Context, contract string, data []byte, block *big.Int) ([]byte, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	addr := common.HexToAddress(contract)
	return c.eth.CallContract(cctx, ethereum.CallMsg{To: &addr, Data: data}, block)
}
