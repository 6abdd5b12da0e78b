// Package pricing computes fares and checks them against a rider's wallet.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/trip-matching/internal/models"
)

const (
	BaseFareVND  = 10000
	PerKmVND     = 15000
	VNDPerCredit = 10
)

var (
	ErrNoPaymentMethod      = errors.New("pricing: no payment method chosen")
	ErrUnknownPaymentMethod = errors.New("pricing: unknown payment method")
	ErrInsufficientBalance  = errors.New("pricing: insufficient balance")
)

// InsufficientBalanceError reports a credit method whose balance is below the
// fare. It matches ErrInsufficientBalance.
type InsufficientBalanceError struct {
	Method models.PaymentMethod
	Have   int64
	Need   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("pricing: %s balance %d below %d credits", e.Method, e.Have, e.Need)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// Price returns the fare in VND for a trip of distanceKm.
func Price(distanceKm float64) int64 {
	return int64(math.Round(BaseFareVND + distanceKm*PerKmVND))
}

// ToCredit converts a VND amount to wallet credits.
func ToCredit(vnd int64) int64 {
	return int64(math.Round(float64(vnd) / VNDPerCredit))
}

// Quote is the fare shown on the booking screen.
type Quote struct {
	PriceVND int64 `json:"priceVnd"`
	Credits  int64 `json:"credits"`
}

func QuoteFor(distanceKm float64) Quote {
	p := Price(distanceKm)
	return Quote{PriceVND: p, Credits: ToCredit(p)}
}

// ValidateMethod rejects an empty or unrecognised payment method.
func ValidateMethod(m models.PaymentMethod) error {
	switch m {
	case models.PaymentCash, models.PaymentBKCredit, models.PaymentBKCreditPlus:
		return nil
	case "":
		return ErrNoPaymentMethod
	}
	return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, m)
}

// CheckPayment reports whether method can pay priceVND out of w. Cash is
// always valid.
func CheckPayment(method models.PaymentMethod, priceVND int64, w Wallet) error {
	if err := ValidateMethod(method); err != nil {
		return err
	}
	if method == models.PaymentCash {
		return nil
	}
	need := ToCredit(priceVND)
	if have := w.Balance(method); have < need {
		return &InsufficientBalanceError{Method: method, Have: have, Need: need}
	}
	return nil
}
