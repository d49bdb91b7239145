// settlement-gateway/internal/ledger/ledger.go
//
// Balance custody for the gateway. Balances are plain store entries keyed
// by (token, account), so ledger moves staged during a payment commit or
// roll back together with every other state mutation.
package ledger

import (
	"context"
	"encoding/binary"

	"github.com/example/settlement-gateway/internal/store"
	"github.com/example/settlement-gateway/pkg/errors"
)

// Treasury accrues collected fees until an administrator withdraws them.
const Treasury = "treasury"

type Ledger struct {
	db *store.DB
}

func New(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

func balanceKey(token, account string) string {
	return store.Key("bal", token, account)
}

func (l *Ledger) Balance(ctx context.Context, token, account string) (uint64, error) {
	v, ok, err := l.db.Get(ctx, balanceKey(token, account))
	if err != nil {
		return 0, err
	}
	if !ok || len(v) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

func (l *Ledger) setBalance(ctx context.Context, token, account string, amount uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return l.db.Put(ctx, balanceKey(token, account), buf[:])
}

// Credit mints value into an account. Used for test fixtures and for
// external deposits arriving from the settlement rails.
func (l *Ledger) Credit(ctx context.Context, token, account string, amount uint64) error {
	bal, err := l.Balance(ctx, token, account)
	if err != nil {
		return err
	}
	if bal+amount < bal {
		return errors.Domain("balance overflow")
	}
	return l.setBalance(ctx, token, account, bal+amount)
}

// Debit burns value from an account.
func (l *Ledger) Debit(ctx context.Context, token, account string, amount uint64) error {
	bal, err := l.Balance(ctx, token, account)
	if err != nil {
		return err
	}
	if bal < amount {
		return errors.Domain("insufficient balance")
	}
	return l.setBalance(ctx, token, account, bal-amount)
}

// Transfer moves value between two accounts of the same token.
func (l *Ledger) Transfer(ctx context.Context, token, from, to string, amount uint64) error {
	if amount == 0 {
		return errors.Config("amount must be greater than zero")
	}
	if err := l.Debit(ctx, token, from, amount); err != nil {
		return err
	}
	return l.Credit(ctx, token, to, amount)
}
