package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurallock/nla/internal/types"
)

type fakeBackend struct {
	callResults   map[string][]byte // keyed by 4-byte selector
	sentTxs       []*ethtypes.Transaction
	receiptStatus uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		callResults:   make(map[string][]byte),
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.callResults[string(call.Data[:4])], nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	b.sentTxs = append(b.sentTxs, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{
		BlockNumber: big.NewInt(100),
		GasUsed:     50_000,
		Status:      b.receiptStatus,
	}, nil
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (b *fakeBackend) Close() {}

// stub packs the method's outputs and registers them as the call result.
func (b *fakeBackend) stub(t *testing.T, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	b.callResults[string(parsed.Methods[method].ID)] = out
}

func newTestClient(t *testing.T, backend *fakeBackend) *LiveClient {
	t.Helper()
	signer, err := NewLocalSigner(testKey)
	require.NoError(t, err)

	client, err := NewLiveClient(LiveConfig{
		Locker:         common.HexToAddress("0x0000000000000000000000000000000000000011"),
		LPToken:        common.HexToAddress("0x0000000000000000000000000000000000000022"),
		MaxGasLimit:    500_000,
		MaxPriorityFee: big.NewInt(2e9),
		Signer:         signer,
	}, WithBackend(backend))
	require.NoError(t, err)
	return client
}

func parsedLockerABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(lockerABI))
	require.NoError(t, err)
	return parsed
}

func TestNewLiveClientRequiresSigner(t *testing.T) {
	_, err := NewLiveClient(LiveConfig{})
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestLockCount(t *testing.T) {
	backend := newFakeBackend()
	backend.stub(t, parsedLockerABI(t), "lockIdCounter", big.NewInt(42))
	client := newTestClient(t, backend)

	count, err := client.LockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)
}

func TestLockRecordRoundTrip(t *testing.T) {
	owner := common.HexToAddress("0x0000000000000000000000000000000000000033")
	condition := common.HexToHash("0xbeef")

	backend := newFakeBackend()
	backend.stub(t, parsedLockerABI(t), "lockRecords",
		common.HexToAddress("0x0000000000000000000000000000000000000022"), // lpToken
		big.NewInt(12345),        // amount
		big.NewInt(1_700_000_000), // lockTime
		big.NewInt(1_700_086_400), // unlockTime
		uint8(types.LockTypeTimeLocked),
		owner,
		true,
		[32]byte(condition),
	)
	client := newTestClient(t, backend)

	record, err := client.LockRecord(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), record.ID)
	assert.Equal(t, "12345", record.Amount.String())
	assert.Equal(t, int64(1_700_000_000), record.LockTime)
	assert.Equal(t, int64(1_700_086_400), record.UnlockTime)
	assert.Equal(t, types.LockTypeTimeLocked, record.LockType)
	assert.Equal(t, owner, record.Owner)
	assert.True(t, record.IsLocked)
	assert.Equal(t, condition, record.ConditionHash)
}

func TestAINonce(t *testing.T) {
	backend := newFakeBackend()
	backend.stub(t, parsedLockerABI(t), "aiNonces", big.NewInt(9))
	client := newTestClient(t, backend)

	nonce, err := client.AINonce(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, "9", nonce.String())
}

func TestSubmitAIAction(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	action := AIAction{
		LockID:     7,
		ActionType: types.ActionUnlock,
		Amount:     big.NewInt(500),
		StateHash:  common.HexToHash("0xdead"),
		Expiry:     1_700_000_000,
	}

	receipt, err := client.SubmitAIAction(context.Background(), action, make([]byte, 65))
	require.NoError(t, err)

	assert.Equal(t, uint64(100), receipt.BlockNumber)
	assert.Equal(t, uint64(50_000), receipt.GasUsed)
	assert.Equal(t, uint64(1), receipt.Status)

	require.Len(t, backend.sentTxs, 1)
	tx := backend.sentTxs[0]
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(500_000), tx.Gas())
	assert.Equal(t, client.locker, *tx.To())

	// The calldata must decode back to the tuple we submitted.
	parsed := parsedLockerABI(t)
	method, err := parsed.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeAIAction", method.Name)

	values, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, values, 2)
}

func TestSubmitAIActionNilAmountSubmitsZero(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	_, err := client.SubmitAIAction(context.Background(), AIAction{LockID: 1}, make([]byte, 65))
	require.NoError(t, err)
	require.Len(t, backend.sentTxs, 1)
}

func TestSubmitRevertedTransaction(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = ethtypes.ReceiptStatusFailed
	client := newTestClient(t, backend)

	_, err := client.SubmitApprove(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrTxReverted)
}

func TestSubmitLockPacksConditionHash(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)

	_, err := client.SubmitLock(context.Background(), big.NewInt(100), types.LockTypeTimeLocked, 86400, common.Hash{})
	require.NoError(t, err)

	require.Len(t, backend.sentTxs, 1)
	parsed := parsedLockerABI(t)
	method, err := parsed.MethodById(backend.sentTxs[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "lock", method.Name)
}
