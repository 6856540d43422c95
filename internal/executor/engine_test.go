package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/types"
)

// Well-known hardhat development key, never used on a real network.
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type lockCall struct {
	amount   *big.Int
	lockType types.LockType
	duration int64
}

type aiCall struct {
	action    chain.AIAction
	signature []byte
}

type stateCall struct {
	update    chain.StateUpdate
	signature []byte
}

type fakeClient struct {
	balance   *big.Int
	allowance *big.Int
	nonce     *big.Int

	approveCalls []*big.Int
	lockCalls    []lockCall
	aiCalls      []aiCall
	stateCalls   []stateCall

	balanceErr error
	submitErr  error
}

func (f *fakeClient) LockCount(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeClient) LockRecord(ctx context.Context, id uint64) (types.LockRecord, error) {
	return types.LockRecord{}, chain.ErrRecordNotFound
}
func (f *fakeClient) LatestMarketState(ctx context.Context) (chain.OnChainState, error) {
	return chain.OnChainState{}, nil
}
func (f *fakeClient) FeeData(ctx context.Context) (chain.FeeData, error) {
	return chain.FeeData{GasPrice: big.NewInt(1e9)}, nil
}
func (f *fakeClient) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}
func (f *fakeClient) TokenAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return f.allowance, nil
}
func (f *fakeClient) AINonce(ctx context.Context, signer common.Address) (*big.Int, error) {
	return f.nonce, nil
}
func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (f *fakeClient) SubmitApprove(ctx context.Context, amount *big.Int) (chain.Receipt, error) {
	f.approveCalls = append(f.approveCalls, amount)
	return f.receipt()
}
func (f *fakeClient) SubmitLock(ctx context.Context, amount *big.Int, lockType types.LockType, duration int64, conditionHash common.Hash) (chain.Receipt, error) {
	f.lockCalls = append(f.lockCalls, lockCall{amount: amount, lockType: lockType, duration: duration})
	return f.receipt()
}
func (f *fakeClient) SubmitAIAction(ctx context.Context, action chain.AIAction, signature []byte) (chain.Receipt, error) {
	f.aiCalls = append(f.aiCalls, aiCall{action: action, signature: signature})
	return f.receipt()
}
func (f *fakeClient) SubmitStateUpdate(ctx context.Context, update chain.StateUpdate, signature []byte) (chain.Receipt, error) {
	f.stateCalls = append(f.stateCalls, stateCall{update: update, signature: signature})
	return f.receipt()
}
func (f *fakeClient) Close() {}

func (f *fakeClient) receipt() (chain.Receipt, error) {
	if f.submitErr != nil {
		return chain.Receipt{}, f.submitErr
	}
	return chain.Receipt{TxHash: "0xabc", BlockNumber: 12, GasUsed: 21000, Status: 1}, nil
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balance:   big.NewInt(1_000_000),
		allowance: big.NewInt(1_000_000),
		nonce:     big.NewInt(7),
	}
}

func newTestEngine(t *testing.T, client *fakeClient) *Engine {
	t.Helper()
	signer, err := chain.NewLocalSigner(testSignerKey)
	require.NoError(t, err)

	engine, err := NewEngine(context.Background(), client, signer, common.HexToAddress("0x01"))
	require.NoError(t, err)
	return engine
}

func testState() types.FusedState {
	return types.FusedState{
		Market:       types.MarketSnapshot{Price: 2.0, Liquidity: 10_000, Volume24h: 1_000},
		Health:       types.HealthMetrics{TVL: 1234.5, Volatility: 0.1234},
		HealthStatus: types.StatusWarning,
		Timestamp:    time.Now(),
		StateHash:    common.HexToHash("0xdead"),
	}
}

func lockID(id uint64) *uint64 { return &id }

func TestExecuteRefusesHold(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	result := engine.Execute(context.Background(), types.Decision{Action: types.ActionHold}, testState())

	assert.False(t, result.Success)
	assert.Empty(t, client.lockCalls)
	assert.Empty(t, client.aiCalls)
}

func TestExecuteLock(t *testing.T) {
	t.Run("submits with allowance already in place", func(t *testing.T) {
		client := newFakeClient()
		engine := newTestEngine(t, client)

		result := engine.Execute(context.Background(), types.Decision{
			Action: types.ActionLock,
			Amount: big.NewInt(500),
		}, testState())

		require.True(t, result.Success)
		assert.Empty(t, client.approveCalls, "sufficient allowance must not be re-approved")
		require.Len(t, client.lockCalls, 1)
		assert.Equal(t, "500", client.lockCalls[0].amount.String())
		assert.Equal(t, types.LockTypeTimeLocked, client.lockCalls[0].lockType)
		assert.Equal(t, int64(30*24*3600), client.lockCalls[0].duration, "missing duration defaults to 30 days")
		assert.Equal(t, testState().StateHash.Hex(), result.StateProof)
	})

	t.Run("approves unlimited when allowance is short", func(t *testing.T) {
		client := newFakeClient()
		client.allowance = big.NewInt(10)
		engine := newTestEngine(t, client)

		result := engine.Execute(context.Background(), types.Decision{
			Action:   types.ActionLock,
			Amount:   big.NewInt(500),
			Duration: 48 * 3600,
		}, testState())

		require.True(t, result.Success)
		require.Len(t, client.approveCalls, 1)
		assert.Equal(t, maxUint256, client.approveCalls[0])
		require.Len(t, client.lockCalls, 1)
		assert.Equal(t, int64(48*3600), client.lockCalls[0].duration)
	})

	t.Run("fails on insufficient balance without submitting", func(t *testing.T) {
		client := newFakeClient()
		client.balance = big.NewInt(100)
		engine := newTestEngine(t, client)

		result := engine.Execute(context.Background(), types.Decision{
			Action: types.ActionLock,
			Amount: big.NewInt(500),
		}, testState())

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "insufficient LP balance")
		assert.Empty(t, client.lockCalls)
	})

	t.Run("fails without an amount", func(t *testing.T) {
		client := newFakeClient()
		engine := newTestEngine(t, client)

		result := engine.Execute(context.Background(), types.Decision{Action: types.ActionLock}, testState())

		assert.False(t, result.Success)
		assert.Empty(t, client.lockCalls)
	})
}

func TestExecuteUnlock(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	before := time.Now()
	result := engine.Execute(context.Background(), types.Decision{
		Action: types.ActionUnlock,
		LockID: lockID(3),
		Amount: big.NewInt(250),
	}, testState())

	require.True(t, result.Success)
	require.Len(t, client.aiCalls, 1)

	call := client.aiCalls[0]
	assert.Equal(t, uint64(3), call.action.LockID)
	assert.Equal(t, types.ActionUnlock, call.action.ActionType)
	assert.Equal(t, "250", call.action.Amount.String())
	assert.Equal(t, testState().StateHash, call.action.StateHash)
	assert.Len(t, call.signature, 65)

	expiry := time.Unix(call.action.Expiry, 0)
	assert.WithinDuration(t, before.Add(ActionExpiry), expiry, 5*time.Second)
}

func TestExecuteEmergencyUnlockUsesShortExpiry(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	before := time.Now()
	result := engine.Execute(context.Background(), types.Decision{
		Action: types.ActionEmergencyUnlock,
		LockID: lockID(1),
	}, testState())

	require.True(t, result.Success)
	require.Len(t, client.aiCalls, 1)

	call := client.aiCalls[0]
	assert.Zero(t, call.action.Amount.Sign(), "nil decision amount submits as zero")

	expiry := time.Unix(call.action.Expiry, 0)
	assert.WithinDuration(t, before.Add(EmergencyActionExpiry), expiry, 5*time.Second)
}

func TestExecuteExtendLockCarriesDurationInAmountSlot(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	result := engine.Execute(context.Background(), types.Decision{
		Action:   types.ActionExtendLock,
		LockID:   lockID(4),
		Duration: 7 * 24 * 3600,
	}, testState())

	require.True(t, result.Success)
	require.Len(t, client.aiCalls, 1)
	assert.Equal(t, big.NewInt(7*24*3600).String(), client.aiCalls[0].action.Amount.String())
}

func TestExecuteActionRequiresLockID(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	result := engine.Execute(context.Background(), types.Decision{Action: types.ActionUnlock}, testState())

	assert.False(t, result.Success)
	assert.Empty(t, client.aiCalls)
}

func TestExecuteSurfacesSubmissionFailure(t *testing.T) {
	client := newFakeClient()
	client.submitErr = errors.New("execution reverted")
	engine := newTestEngine(t, client)

	result := engine.Execute(context.Background(), types.Decision{
		Action: types.ActionUnlock,
		LockID: lockID(1),
	}, testState())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "execution reverted")
	assert.Equal(t, testState().StateHash.Hex(), result.StateProof)
}

func TestPublishState(t *testing.T) {
	client := newFakeClient()
	engine := newTestEngine(t, client)

	err := engine.PublishState(context.Background(), testState())
	require.NoError(t, err)

	require.Len(t, client.stateCalls, 1)
	call := client.stateCalls[0]

	assert.Equal(t, "123450000000", call.update.TVL.String())        // 1234.5 * 1e8
	assert.Equal(t, "1234", call.update.Volatility.String())        // 0.1234 * 1e4
	assert.Equal(t, "1000000000000", call.update.LiquidityDepth.String()) // 10000 * 1e8
	assert.Equal(t, "1000", call.update.PriceImpact.String())       // (1000/10000) * 1e4
	assert.Equal(t, types.StatusWarning, call.update.Health)
	assert.NotZero(t, call.update.Timestamp)
	assert.Len(t, call.signature, 65)
}

func TestStateUpdateDigestBindsHour(t *testing.T) {
	base := chain.StateUpdate{
		TVL:            big.NewInt(123_450_000_000),
		Volatility:     big.NewInt(1234),
		LiquidityDepth: big.NewInt(1_000_000_000_000),
		PriceImpact:    big.NewInt(1000),
		Health:         types.StatusWarning,
		Timestamp:      1_700_000_000_000,
	}

	sameHour := base
	sameHour.Timestamp = base.Timestamp + 60_000 // one minute later

	nextHour := base
	nextHour.Timestamp = base.Timestamp + 3_600_000

	assert.Equal(t, stateUpdateDigest(base), stateUpdateDigest(sameHour))
	assert.NotEqual(t, stateUpdateDigest(base), stateUpdateDigest(nextHour))
}

func TestPublishStateSubmissionFailure(t *testing.T) {
	client := newFakeClient()
	client.submitErr = errors.New("nonce too low")
	engine := newTestEngine(t, client)

	err := engine.PublishState(context.Background(), testState())
	assert.Error(t, err)
}

func TestActionTypedDataShape(t *testing.T) {
	action := chain.AIAction{
		LockID:     9,
		ActionType: types.ActionUnlock,
		Amount:     big.NewInt(100),
		StateHash:  common.HexToHash("0xbeef"),
		Expiry:     1700000000,
	}

	data := actionTypedData(big.NewInt(31337), common.HexToAddress("0x02"), action, big.NewInt(5))

	assert.Equal(t, "AIAction", data.PrimaryType)
	assert.Equal(t, domainName, data.Domain.Name)
	assert.Equal(t, domainVersion, data.Domain.Version)

	fields := data.Types["AIAction"]
	require.Len(t, fields, 6)

	// Member order fixes the typehash; the contract encodes
	// (..., stateHash, expiry, nonce).
	assert.Equal(t, "stateHash", fields[3].Name)
	assert.Equal(t, "expiry", fields[4].Name)
	assert.Equal(t, "nonce", fields[5].Name)
	assert.Equal(t,
		crypto.Keccak256Hash([]byte("AIAction(uint256 lockId,uint8 actionType,uint256 amount,bytes32 stateHash,uint256 expiry,uint256 nonce)")).Hex(),
		hexutil.Encode(data.TypeHash("AIAction")),
	)

	// The payload must hash cleanly; a malformed message would error here.
	signer, err := chain.NewLocalSigner(testSignerKey)
	require.NoError(t, err)
	sig, err := signer.SignTypedData(data)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
}
