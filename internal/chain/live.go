/*

This file contains the live EVM implementation of the chain Client. It talks
to the locker and LP token contracts over JSON-RPC with a static gas
configuration so submitted transactions stay deterministic.

*/

package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/types"
)

// Locker contract ABI, limited to the entry points the agent uses.
const lockerABI = `[
	{"name":"lockIdCounter","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"lockRecords","type":"function","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"lpToken","type":"address"},{"name":"amount","type":"uint256"},{"name":"lockTime","type":"uint256"},{"name":"unlockTime","type":"uint256"},{"name":"lockType","type":"uint8"},{"name":"owner","type":"address"},{"name":"isLocked","type":"bool"},{"name":"conditionHash","type":"bytes32"}]},
	{"name":"latestMarketState","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"tvl","type":"uint256"},{"name":"volatility","type":"uint256"},{"name":"liquidityDepth","type":"uint256"},{"name":"priceImpact","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"health","type":"uint8"}]},
	{"name":"aiNonces","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"lock","type":"function","stateMutability":"nonpayable","inputs":[{"name":"lpToken","type":"address"},{"name":"amount","type":"uint256"},{"name":"lockType","type":"uint8"},{"name":"duration","type":"uint256"},{"name":"conditionHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"executeAIAction","type":"function","stateMutability":"nonpayable","inputs":[{"name":"action","type":"tuple","components":[{"name":"lockId","type":"uint256"},{"name":"actionType","type":"uint8"},{"name":"amount","type":"uint256"},{"name":"stateHash","type":"bytes32"},{"name":"expiry","type":"uint256"}]},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"name":"updateMarketState","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tvl","type":"uint256"},{"name":"volatility","type":"uint256"},{"name":"liquidityDepth","type":"uint256"},{"name":"priceImpact","type":"uint256"},{"name":"health","type":"uint8"},{"name":"signature","type":"bytes"}],"outputs":[]}
]`

// ERC20 minimal ABI for balance, allowance and approve.
const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const (
	// ReceiptPollInterval between receipt checks after a submit.
	ReceiptPollInterval = 2 * time.Second
	// ReceiptTimeout bounds how long a submit waits for confirmation.
	ReceiptTimeout = 90 * time.Second
)

// aiActionTuple matches the executeAIAction tuple layout for ABI packing.
type aiActionTuple struct {
	LockId     *big.Int
	ActionType uint8
	Amount     *big.Int
	StateHash  [32]byte
	Expiry     *big.Int
}

// Backend abstracts the go-ethereum client so tests can substitute a fake.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// LiveConfig holds everything needed to talk to a deployed locker.
type LiveConfig struct {
	RPCURL         string
	Locker         common.Address
	LPToken        common.Address
	MaxGasLimit    uint64
	MaxPriorityFee *big.Int
	Signer         Signer
}

// LiveClient implements Client against a real network.
type LiveClient struct {
	backend   Backend
	signer    Signer
	locker    common.Address
	lpToken   common.Address
	lockerABI abi.ABI
	tokenABI  abi.ABI
	gasLimit  uint64
	tipCap    *big.Int
	logger    zerolog.Logger
}

var _ Client = (*LiveClient)(nil)

// Option configures the live client.
type Option func(*LiveClient)

// WithBackend sets a custom backend (used in tests).
func WithBackend(b Backend) Option {
	return func(c *LiveClient) {
		c.backend = b
	}
}

// NewLiveClient connects to the RPC endpoint and prepares the contract ABIs.
func NewLiveClient(cfg LiveConfig, opts ...Option) (*LiveClient, error) {
	if cfg.Signer == nil {
		return nil, ErrNoSigner
	}

	parsedLocker, err := abi.JSON(strings.NewReader(lockerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse locker ABI: %w", err)
	}
	parsedToken, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	c := &LiveClient{
		signer:    cfg.Signer,
		locker:    cfg.Locker,
		lpToken:   cfg.LPToken,
		lockerABI: parsedLocker,
		tokenABI:  parsedToken,
		gasLimit:  cfg.MaxGasLimit,
		tipCap:    cfg.MaxPriorityFee,
		logger:    logger.GetForComponent("chain_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.backend == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.backend = client
	}

	return c, nil
}

func (c *LiveClient) Close() {
	c.backend.Close()
}

// --- Reader ---

func (c *LiveClient) LockCount(ctx context.Context) (uint64, error) {
	values, err := c.callLocker(ctx, "lockIdCounter")
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}

func (c *LiveClient) LockRecord(ctx context.Context, id uint64) (types.LockRecord, error) {
	values, err := c.callLocker(ctx, "lockRecords", new(big.Int).SetUint64(id))
	if err != nil {
		return types.LockRecord{}, err
	}

	return types.LockRecord{
		ID:            id,
		Amount:        values[1].(*big.Int),
		LockTime:      values[2].(*big.Int).Int64(),
		UnlockTime:    values[3].(*big.Int).Int64(),
		LockType:      types.LockType(values[4].(uint8)),
		Owner:         values[5].(common.Address),
		IsLocked:      values[6].(bool),
		ConditionHash: values[7].([32]byte),
	}, nil
}

func (c *LiveClient) LatestMarketState(ctx context.Context) (OnChainState, error) {
	values, err := c.callLocker(ctx, "latestMarketState")
	if err != nil {
		return OnChainState{}, err
	}

	return OnChainState{
		TVL:            values[0].(*big.Int),
		Volatility:     values[1].(*big.Int),
		LiquidityDepth: values[2].(*big.Int),
		PriceImpact:    values[3].(*big.Int),
		Timestamp:      values[4].(*big.Int).Int64(),
		Health:         types.HealthStatus(values[5].(uint8)),
	}, nil
}

func (c *LiveClient) FeeData(ctx context.Context) (FeeData, error) {
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return FeeData{}, fmt.Errorf("failed to resolve gas price: %w", err)
	}
	return FeeData{GasPrice: gasPrice}, nil
}

func (c *LiveClient) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callTokenUint(ctx, "balanceOf", owner)
}

func (c *LiveClient) TokenAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callTokenUint(ctx, "allowance", owner, c.locker)
}

func (c *LiveClient) AINonce(ctx context.Context, signer common.Address) (*big.Int, error) {
	values, err := c.callLocker(ctx, "aiNonces", signer)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *LiveClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// --- Writer ---

func (c *LiveClient) SubmitApprove(ctx context.Context, amount *big.Int) (Receipt, error) {
	data, err := c.tokenABI.Pack("approve", c.locker, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.submit(ctx, c.lpToken, data)
}

func (c *LiveClient) SubmitLock(ctx context.Context, amount *big.Int, lockType types.LockType, duration int64, conditionHash common.Hash) (Receipt, error) {
	data, err := c.lockerABI.Pack(
		"lock",
		c.lpToken,
		amount,
		uint8(lockType),
		big.NewInt(duration),
		[32]byte(conditionHash),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to pack lock: %w", err)
	}
	return c.submit(ctx, c.locker, data)
}

func (c *LiveClient) SubmitAIAction(ctx context.Context, action AIAction, signature []byte) (Receipt, error) {
	amount := action.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}

	tuple := aiActionTuple{
		LockId:     new(big.Int).SetUint64(action.LockID),
		ActionType: uint8(action.ActionType),
		Amount:     amount,
		StateHash:  action.StateHash,
		Expiry:     big.NewInt(action.Expiry),
	}

	data, err := c.lockerABI.Pack("executeAIAction", tuple, signature)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to pack executeAIAction: %w", err)
	}
	return c.submit(ctx, c.locker, data)
}

func (c *LiveClient) SubmitStateUpdate(ctx context.Context, update StateUpdate, signature []byte) (Receipt, error) {
	data, err := c.lockerABI.Pack(
		"updateMarketState",
		update.TVL,
		update.Volatility,
		update.LiquidityDepth,
		update.PriceImpact,
		uint8(update.Health),
		signature,
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to pack updateMarketState: %w", err)
	}
	return c.submit(ctx, c.locker, data)
}

// --- internals ---

func (c *LiveClient) callLocker(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return c.call(ctx, c.lockerABI, c.locker, method, args...)
}

func (c *LiveClient) callTokenUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, c.tokenABI, c.lpToken, method, args...)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (c *LiveClient) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return values, nil
}

// submit signs and broadcasts a transaction with the static gas configuration
// and waits for its receipt.
func (c *LiveClient) submit(ctx context.Context, to common.Address, data []byte) (Receipt, error) {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to resolve chain id: %w", err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to resolve account nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to resolve gas price: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: c.tipCap,
		GasFeeCap: new(big.Int).Add(gasPrice, c.tipCap),
		Gas:       c.gasLimit,
		To:        &to,
		Data:      data,
	})

	signedTx, err := c.signer.SignTx(tx, chainID)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return Receipt{}, fmt.Errorf("failed to send transaction %s: %w", signedTx.Hash().Hex(), err)
	}

	c.logger.Debug().
		Str("txHash", signedTx.Hash().Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction submitted, waiting for receipt")

	return c.waitReceipt(ctx, signedTx.Hash())
}

func (c *LiveClient) waitReceipt(ctx context.Context, txHash common.Hash) (Receipt, error) {
	deadline := time.Now().Add(ReceiptTimeout)
	ticker := time.NewTicker(ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			out := Receipt{
				TxHash:      txHash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
				Status:      receipt.Status,
			}
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return out, fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex())
			}
			return out, nil
		}

		if time.Now().After(deadline) {
			return Receipt{TxHash: txHash.Hex()}, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return Receipt{TxHash: txHash.Hex()}, ctx.Err()
		case <-ticker.C:
		}
	}
}
