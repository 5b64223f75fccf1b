package blockchain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mark-operator.backend/internal/domain/bridge"
)

func TestERC20Calldata(t *testing.T) {
	spender := "0x1111111111111111111111111111111111111111"
	amount := big.NewInt(1000)

	approve := ERC20ApproveCalldata(spender, amount)
	require.Len(t, approve, 4+32+32)
	assert.Equal(t, "095ea7b3", hex.EncodeToString(approve[:4]))
	assert.Equal(t, spender[2:], hex.EncodeToString(approve[16:36]))
	assert.Equal(t, amount, new(big.Int).SetBytes(approve[36:]))

	transfer := ERC20TransferCalldata(spender, amount)
	require.Len(t, transfer, 4+32+32)
	assert.Equal(t, "a9059cbb", hex.EncodeToString(transfer[:4]))
}

func TestWETHCalldata(t *testing.T) {
	assert.Equal(t, "d0e30db0", hex.EncodeToString(WETHDepositCalldata()))

	withdraw := WETHWithdrawCalldata(big.NewInt(5))
	require.Len(t, withdraw, 4+32)
	assert.Equal(t, "2e1a7d4d", hex.EncodeToString(withdraw[:4]))
	assert.Equal(t, int64(5), new(big.Int).SetBytes(withdraw[4:]).Int64())
}

func TestWrapWithZodiac(t *testing.T) {
	inner := &bridge.TxRequest{
		ChainID: 10,
		To:      "0x2222222222222222222222222222222222222222",
		Data:    ERC20TransferCalldata("0x3333333333333333333333333333333333333333", big.NewInt(7)),
		Value:   big.NewInt(42),
	}

	wrapped := WrapWithZodiac("0x4444444444444444444444444444444444444444", inner)

	assert.Equal(t, uint64(10), wrapped.ChainID)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", wrapped.To)
	assert.Equal(t, int64(0), wrapped.Value.Int64(), "outer call carries no value; the Safe pays")

	data := wrapped.Data
	assert.Equal(t, "468721a7", hex.EncodeToString(data[:4]))
	// Static words: to, value, data offset, operation.
	assert.Equal(t, inner.To[2:], hex.EncodeToString(data[16:36]))
	assert.Equal(t, int64(42), new(big.Int).SetBytes(data[36:68]).Int64())
	assert.Equal(t, int64(0x80), new(big.Int).SetBytes(data[68:100]).Int64())
	assert.Equal(t, int64(0), new(big.Int).SetBytes(data[100:132]).Int64())
	// Tail: inner calldata length then right-padded bytes.
	assert.Equal(t, int64(len(inner.Data)), new(big.Int).SetBytes(data[132:164]).Int64())
	assert.Equal(t, inner.Data, data[164:164+len(inner.Data)])
	assert.Zero(t, len(data[164:])%32, "tail is padded to a word boundary")
}

func TestWrapWithZodiacEmptyData(t *testing.T) {
	wrapped := WrapWithZodiac("0x4444444444444444444444444444444444444444", &bridge.TxRequest{
		ChainID: 1,
		To:      "0x2222222222222222222222222222222222222222",
		Value:   nil,
	})
	data := wrapped.Data
	require.Len(t, data, 4+5*32)
	assert.Equal(t, int64(0), new(big.Int).SetBytes(data[132:164]).Int64())
}
