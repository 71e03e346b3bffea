// Package classify decides the direction of a transfer relative to known
// exchange wallets and whether it should be suppressed as noise.
package classify

import (
	"fmt"
	"strings"

	"whaleScope/internal/model"
)

// Vocabulary selects how exchange-bound directions are named on a chain.
type Vocabulary string

const (
	// BuySell names transfers into an exchange SELL and out of one BUY.
	BuySell Vocabulary = "buy-sell"
	// DepositWithdraw names them DEPOSIT and WITHDRAW.
	DepositWithdraw Vocabulary = "deposit-withdraw"
)

// ParseVocabulary accepts the config spelling of a vocabulary.
func ParseVocabulary(s string) (Vocabulary, error) {
	switch Vocabulary(strings.ToLower(strings.TrimSpace(s))) {
	case BuySell, "":
		return BuySell, nil
	case DepositWithdraw:
		return DepositWithdraw, nil
	default:
		return "", fmt.Errorf("unknown vocabulary %q", s)
	}
}

func (v Vocabulary) intoExchange() model.TxType {
	if v == DepositWithdraw {
		return model.TxDeposit
	}
	return model.TxSell
}

func (v Vocabulary) outOfExchange() model.TxType {
	if v == DepositWithdraw {
		return model.TxWithdraw
	}
	return model.TxBuy
}

// SuppressReason explains why a transfer produced no event.
type SuppressReason string

const (
	NotSuppressed SuppressReason = ""
	// Internal is a transfer between two exchange wallets.
	Internal SuppressReason = "internal"
	// SelfTransfer has identical sender and receiver.
	SelfTransfer SuppressReason = "self"
)

// Verdict is the outcome of Classify.
type Verdict struct {
	Type   model.TxType
	Reason SuppressReason
}

// Suppressed reports whether the transfer must not become an event.
func (v Verdict) Suppressed() bool {
	return v.Reason != NotSuppressed
}

// Labeler answers exchange membership for an address.
type Labeler interface {
	IsExchange(addr string) bool
}

// Classify applies the decision order: exchange-to-exchange and self
// transfers are suppressed, then a receiving exchange wins over a sending one.
// Address comparison ignores case.
func Classify(from, to string, labels Labeler, vocab Vocabulary) Verdict {
	fromExchange := labels != nil && labels.IsExchange(from)
	toExchange := labels != nil && labels.IsExchange(to)

	switch {
	case fromExchange && toExchange:
		return Verdict{Reason: Internal}
	case strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)):
		return Verdict{Reason: SelfTransfer}
	case toExchange:
		return Verdict{Type: vocab.intoExchange()}
	case fromExchange:
		return Verdict{Type: vocab.outOfExchange()}
	default:
		return Verdict{Type: model.TxNone}
	}
}
