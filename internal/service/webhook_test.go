package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

func callback(paymentID, status string) []byte {
	return []byte(fmt.Sprintf(`{"type":"notification","event":"payment.%s","object":{"id":%q,"status":%q,"paid":true}}`,
		status, paymentID, status))
}

func TestHandleCallback_ForbiddenSourceMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	payer := int64(1)
	_, err := env.svc.CreateDeposit(context.Background(), DepositInput{UserID: 1, PayerID: &payer, Amount: decimal.NewFromInt(100), ReturnURL: "https://x"})
	require.NoError(t, err)

	payloads := [][]byte{
		callback("pay-1", "succeeded"),
		[]byte(`{"event":"payment.succeeded"}`),
		[]byte(`not json`),
	}
	for _, ip := range []string{"10.0.0.1", "185.71.77.1", "", "garbage", "2a03::1"} {
		for _, p := range payloads {
			err := env.svc.HandleCallback(context.Background(), p, ip)
			require.ErrorIs(t, err, ErrForbiddenSource, "ip %q", ip)
		}
	}

	assert.True(t, env.repo.users[1].Balance.IsZero())
	assert.Equal(t, model.PaymentStatusPending, env.repo.transactions["pay-1"].Status)
	assert.Empty(t, env.repo.events)
}

func TestHandleCallback_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)

	payloads := []string{
		`not json`,
		`[1, 2]`,
		`null`,
		`{"object":{"id":"p","status":"succeeded"}}`,
		`{"event":"payment.succeeded"}`,
		`{"event":"payment.succeeded","object":{"status":"succeeded"}}`,
		`{"event":"payment.succeeded","object":{"id":"p"}}`,
	}

	for _, p := range payloads {
		err := env.svc.HandleCallback(context.Background(), []byte(p), gatewayIP)
		require.ErrorIs(t, err, ErrInvalidPayload, p)
	}
}

func TestHandleCallback_UnknownTransaction(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.HandleCallback(context.Background(), callback("missing", "succeeded"), gatewayIP)
	require.ErrorIs(t, err, repository.ErrTransactionNotFound)
	assert.Empty(t, env.repo.events)
}

func TestHandleCallback_DepositReplayCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	env.addUser(t, 2, "")
	env.repo.users[1].Username = strPtr("alice")

	payer := int64(2)
	res, err := env.svc.CreateDeposit(context.Background(), DepositInput{
		UserID:    1,
		PayerID:   &payer,
		Amount:    decimal.RequireFromString("250.00"),
		ReturnURL: "https://x",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, env.repo.users[1].Balance.Equal(decimal.NewFromInt(250)), "balance = %s", env.repo.users[1].Balance)
	assert.True(t, env.repo.users[2].Balance.IsZero())
	assert.Equal(t, model.PaymentStatusSucceeded, env.repo.transactions[res.PaymentID].Status)

	msgs := env.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].UserID)
	assert.Equal(t, "Ваш баланс успешно пополнен на 250.00₽!", msgs[0].Text)
	assert.Equal(t, int64(2), msgs[1].UserID)
	assert.Equal(t, "Ваш платёж 250.00₽ успешно зачислен на баланс пользователя @alice.", msgs[1].Text)
}

func TestHandleCallback_DepositOwnPaymentNotifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	self := int64(1)

	res, err := env.svc.CreateDeposit(context.Background(), DepositInput{UserID: 1, PayerID: &self, Amount: decimal.NewFromInt(10), ReturnURL: "https://x"})
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP))
	assert.Len(t, env.notifier.messages(), 1)
}

func TestHandleCallback_DepositCanceledDoesNotCredit(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")

	res, err := env.svc.CreateDeposit(context.Background(), DepositInput{UserID: 1, Amount: decimal.NewFromInt(10), ReturnURL: "https://x"})
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "canceled"), gatewayIP))
	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP))

	assert.True(t, env.repo.users[1].Balance.IsZero())
	assert.Equal(t, model.PaymentStatusCanceled, env.repo.transactions[res.PaymentID].Status)
	assert.Empty(t, env.notifier.messages())
}

func TestHandleCallback_CanceledOrderIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	_, err := env.svc.AddCartItem(context.Background(), model.CartItem{UserID: 1, ItemID: "7", Price: decimal.NewFromInt(500)})
	require.NoError(t, err)

	order := createTestOrder(t, env, 1, model.ContactInfo{Email: strPtr("a@b.c")})
	res, err := env.svc.CreatePayment(context.Background(), PaymentInput{UserID: 1, OrderID: order.ID, ReturnURL: "https://x"})
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "canceled"), gatewayIP))
	assert.Equal(t, model.OrderStatusCanceled, env.repo.orders[order.ID].Status)

	for _, status := range []string{"succeeded", "waiting_for_capture", "canceled", "succeeded"} {
		require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, status), gatewayIP))
	}

	assert.Equal(t, model.OrderStatusCanceled, env.repo.orders[order.ID].Status)
	assert.Equal(t, model.PaymentStatusCanceled, env.repo.transactions[res.PaymentID].Status)
	assert.Len(t, env.repo.cart[1], 1, "cart must survive a canceled payment")

	var cancelNotes int
	for _, m := range env.notifier.messages() {
		if strings.HasPrefix(m.Text, "Оплата заказа") {
			cancelNotes++
		}
	}
	assert.Equal(t, 1, cancelNotes)
}

func TestHandleCallback_WaitingForCaptureKeepsOrderPending(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	order := createTestOrder(t, env, 1, model.ContactInfo{Email: strPtr("a@b.c")})
	res, err := env.svc.CreatePayment(context.Background(), PaymentInput{UserID: 1, OrderID: order.ID, ReturnURL: "https://x"})
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "waiting_for_capture"), gatewayIP))

	assert.Equal(t, model.OrderStatusPendingPayment, env.repo.orders[order.ID].Status)
	assert.Equal(t, model.PaymentStatusWaitingForCapture, env.repo.transactions[res.PaymentID].Status)

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP))
	assert.Equal(t, model.OrderStatusCreated, env.repo.orders[order.ID].Status)
}

type failingTxRepo struct {
	*memRepo
}

func (f *failingTxRepo) WithPaymentTx(ctx context.Context, fn func(tx repository.PaymentTx) error) error {
	return f.memRepo.WithPaymentTx(ctx, func(tx repository.PaymentTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return fmt.Errorf("commit tx: connection reset by peer")
	})
}

func TestHandleCallback_StoreFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, 1, "")
	res, err := env.svc.CreateDeposit(context.Background(), DepositInput{UserID: 1, Amount: decimal.NewFromInt(10), ReturnURL: "https://x"})
	require.NoError(t, err)

	failing := NewService(&failingTxRepo{memRepo: env.repo}, env.gateway, env.notifier, env.svc.allowList, nil)

	err = failing.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP)
	require.Error(t, err)

	assert.True(t, env.repo.users[1].Balance.IsZero())
	assert.Empty(t, env.repo.events)
	assert.Empty(t, env.notifier.messages())

	require.NoError(t, env.svc.HandleCallback(context.Background(), callback(res.PaymentID, "succeeded"), gatewayIP))
	assert.True(t, env.repo.users[1].Balance.Equal(decimal.NewFromInt(10)))
}

func TestEndToEndOrderPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.RegisterUser(ctx, model.User{UserID: 1, PhoneNumber: strPtr("+79001234567")})
	require.NoError(t, err)

	_, err = env.svc.AddCartItem(ctx, model.CartItem{UserID: 1, ItemID: "7", Price: decimal.NewFromInt(500), Title: "Box"})
	require.NoError(t, err)

	order, err := env.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:      1,
		Items:       []model.OrderItem{{ProductID: 7, Price: "500", Title: "Box"}},
		TotalAmount: decimal.NewFromInt(500),
		OrderType:   model.OrderTypeOneTime,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)

	pay, err := env.svc.CreatePayment(ctx, PaymentInput{UserID: 1, OrderID: order.ID, Amount: decimal.NewFromInt(500), ReturnURL: "https://x"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, pay.Status)

	require.NoError(t, env.svc.HandleCallback(ctx, callback(pay.PaymentID, "succeeded"), gatewayIP))

	stored, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCreated, stored.Status)

	cart, err := env.svc.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart)

	msgs := env.notifier.messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, int64(1), last.UserID)
	assert.Contains(t, last.Text, fmt.Sprintf("#%d", order.ID))
	assert.Contains(t, last.Text, "успешно оплачен")

	require.NoError(t, env.svc.HandleCallback(ctx, callback(pay.PaymentID, "succeeded"), gatewayIP))
	assert.Len(t, env.notifier.messages(), len(msgs), "replayed callback must not notify again")

	_, err = env.svc.CreatePayment(ctx, PaymentInput{UserID: 1, OrderID: order.ID, ReturnURL: "https://x"})
	require.ErrorIs(t, err, ErrOrderNotPayable)
}
