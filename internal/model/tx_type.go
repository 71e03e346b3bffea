package model

// TxType is the direction of a whale transfer relative to known exchanges.
type TxType string

const (
	TxBuy      TxType = "BUY"
	TxSell     TxType = "SELL"
	TxDeposit  TxType = "DEPOSIT"
	TxWithdraw TxType = "WITHDRAW"
	TxNone     TxType = "N/A"
)

// Valid reports whether t is one of the known transfer types.
func (t TxType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxDeposit, TxWithdraw, TxNone:
		return true
	default:
		return false
	}
}

// Unit describes whether a value is denominated in a token or the chain's native coin.
type Unit string

const (
	UnitNative Unit = "native"
	UnitToken  Unit = "token"
)
