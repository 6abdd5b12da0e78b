package pricing

import "github.com/example/trip-matching/internal/models"

// Wallet is a read-only snapshot of credit balances per payment method.
// Mutations return a new Wallet; the receiver is never modified.
type Wallet struct {
	Balances map[models.PaymentMethod]int64 `json:"balances"`
}

func NewWallet(bkcredit, bkcreditPlus int64) Wallet {
	return Wallet{Balances: map[models.PaymentMethod]int64{
		models.PaymentBKCredit:     bkcredit,
		models.PaymentBKCreditPlus: bkcreditPlus,
	}}
}

func (w Wallet) Balance(m models.PaymentMethod) int64 { return w.Balances[m] }

func (w Wallet) clone() Wallet {
	out := Wallet{Balances: make(map[models.PaymentMethod]int64, len(w.Balances))}
	for k, v := range w.Balances {
		out.Balances[k] = v
	}
	return out
}

// Debit charges priceVND to method and returns the resulting wallet. Cash
// leaves the balances untouched.
func (w Wallet) Debit(method models.PaymentMethod, priceVND int64) (Wallet, error) {
	if err := CheckPayment(method, priceVND, w); err != nil {
		return w, err
	}
	out := w.clone()
	if method != models.PaymentCash {
		out.Balances[method] -= ToCredit(priceVND)
	}
	return out, nil
}
