package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trip-matching/internal/models"
)

func TestPrice(t *testing.T) {
	assert.Equal(t, int64(85000), Price(5))
	assert.Equal(t, int64(10000), Price(0))
	assert.Equal(t, int64(56500), Price(3.1))
	assert.Equal(t, int64(8500), ToCredit(85000))
	assert.Equal(t, int64(5650), ToCredit(56500))
	assert.Equal(t, int64(2), ToCredit(15))
	assert.Equal(t, Quote{PriceVND: 85000, Credits: 8500}, QuoteFor(5))
}

func TestCheckPayment(t *testing.T) {
	empty := Wallet{}
	assert.NoError(t, CheckPayment(models.PaymentCash, 1_000_000, empty))
	assert.ErrorIs(t, CheckPayment("", 85000, empty), ErrNoPaymentMethod)
	assert.ErrorIs(t, CheckPayment("card", 85000, empty), ErrUnknownPaymentMethod)

	w := NewWallet(8500, 8499)
	assert.NoError(t, CheckPayment(models.PaymentBKCredit, 85000, w))

	err := CheckPayment(models.PaymentBKCreditPlus, 85000, w)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	var ib *InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, int64(8499), ib.Have)
	assert.Equal(t, int64(8500), ib.Need)
}

func TestDebitReturnsNewWallet(t *testing.T) {
	w := NewWallet(50000, 100000)

	after, err := w.Debit(models.PaymentBKCredit, 85000)
	require.NoError(t, err)
	assert.Equal(t, int64(41500), after.Balance(models.PaymentBKCredit))
	assert.Equal(t, int64(100000), after.Balance(models.PaymentBKCreditPlus))
	assert.Equal(t, int64(50000), w.Balance(models.PaymentBKCredit))

	cash, err := w.Debit(models.PaymentCash, 85000)
	require.NoError(t, err)
	assert.Equal(t, w.Balances, cash.Balances)

	_, err = NewWallet(0, 0).Debit(models.PaymentBKCredit, 85000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}
