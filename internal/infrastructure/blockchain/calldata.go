package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"mark-operator.backend/internal/domain/bridge"
)

// ERC20ApproveCalldata encodes approve(spender, amount).
func ERC20ApproveCalldata(spender string, amount *big.Int) []byte {
	// approve(address,uint256) selector: 0x095ea7b3
	data := append(common.Hex2Bytes("095ea7b3"), common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

// ERC20TransferCalldata encodes transfer(to, amount).
func ERC20TransferCalldata(to string, amount *big.Int) []byte {
	// transfer(address,uint256) selector: 0xa9059cbb
	data := append(common.Hex2Bytes("a9059cbb"), common.LeftPadBytes(common.HexToAddress(to).Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

// WETHDepositCalldata encodes deposit() for wrapping the native asset.
func WETHDepositCalldata() []byte {
	// deposit() selector: 0xd0e30db0
	return common.Hex2Bytes("d0e30db0")
}

// WETHWithdrawCalldata encodes withdraw(amount) for unwrapping to native.
func WETHWithdrawCalldata(amount *big.Int) []byte {
	// withdraw(uint256) selector: 0x2e1a7d4d
	return append(common.Hex2Bytes("2e1a7d4d"), common.LeftPadBytes(amount.Bytes(), 32)...)
}

// WrapWithZodiac rewrites a transaction so it executes out of the Safe via
// the Zodiac module: execTransactionFromModule(to, value, data, 0). The
// returned request targets the module address with zero value; the inner
// value moves from the Safe.
func WrapWithZodiac(module string, tx *bridge.TxRequest) *bridge.TxRequest {
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}

	// execTransactionFromModule(address,uint256,bytes,uint8) selector: 0x468721a7
	data := append(common.Hex2Bytes("468721a7"), common.LeftPadBytes(common.HexToAddress(tx.To).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
	// bytes head: offset to the tail, past the 4 static words.
	data = append(data, common.LeftPadBytes(big.NewInt(0x80).Bytes(), 32)...)
	// operation 0 = CALL
	data = append(data, common.LeftPadBytes(nil, 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32)...)
	data = append(data, common.RightPadBytes(tx.Data, (len(tx.Data)+31)/32*32)...)

	return &bridge.TxRequest{
		ChainID: tx.ChainID,
		To:      module,
		Data:    data,
		Value:   big.NewInt(0),
	}
}
