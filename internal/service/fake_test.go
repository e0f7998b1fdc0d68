package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/yookassa"
)

// memRepo — хранилище в памяти. WithPaymentTx выполняется под общей блокировкой
// и откатывает изменения при ошибке, как транзакция с SELECT ... FOR UPDATE.
type memRepo struct {
	mu sync.Mutex

	nextID       int64
	users        map[int64]*model.User
	orders       map[int64]*model.Order
	deliveries   map[int64][]model.Delivery
	cart         map[int64][]model.CartItem
	transactions map[string]*model.Transaction
	events       map[string]bool

	sources []model.Source
	visits  map[string]bool
	actions []model.UserActionLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        map[int64]*model.User{},
		orders:       map[int64]*model.Order{},
		deliveries:   map[int64][]model.Delivery{},
		cart:         map[int64][]model.CartItem{},
		transactions: map[string]*model.Transaction{},
		events:       map[string]bool{},
		visits:       map[string]bool{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[u.UserID]; ok {
		if u.PhoneNumber != nil {
			existing.PhoneNumber = u.PhoneNumber
		}
		if u.Username != nil {
			existing.Username = u.Username
		}
		cp := *existing
		return &cp, nil
	}
	u.ID = u.UserID
	m.users[u.UserID] = &u
	cp := u
	return &cp, nil
}

func (m *memRepo) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetActiveUsers(ctx context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.User
	for _, u := range m.users {
		if !u.Blocked {
			res = append(res, *u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (m *memRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	return []model.Product{}, nil
}

func (m *memRepo) AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[item.UserID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	item.ID = m.id()
	m.cart[item.UserID] = append(m.cart[item.UserID], item)
	return &item, nil
}

func (m *memRepo) GetCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]model.CartItem{}, m.cart[userID]...), nil
}

func (m *memRepo) DeleteCartItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, items := range m.cart {
		for i, it := range items {
			if it.ID == id {
				m.cart[userID] = append(items[:i], items[i+1:]...)
				return nil
			}
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *memRepo) CreateOrder(ctx context.Context, order model.Order, schedule []time.Time) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[order.UserID]; !ok {
		return nil, repository.ErrUserNotFound
	}

	order.ID = m.id()
	stored := order
	m.orders[order.ID] = &stored

	var ds []model.Delivery
	for _, date := range schedule {
		ds = append(ds, model.Delivery{ID: m.id(), OrderID: order.ID, Date: date, Status: model.DeliveryStatusScheduled})
	}
	m.deliveries[order.ID] = ds

	order.Deliveries = append([]model.Delivery{}, ds...)
	return &order, nil
}

func (m *memRepo) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memRepo) ListOrders(ctx context.Context, exclude []model.OrderStatus) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skip := map[model.OrderStatus]bool{}
	for _, s := range exclude {
		skip[s] = true
	}

	var res []model.Order
	for _, o := range m.orders {
		if !skip[o.Status] {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (m *memRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			cp.Deliveries = append([]model.Delivery{}, m.deliveries[o.ID]...)
			res = append(res, cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (m *memRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *memRepo) GetOrderDeliveries(ctx context.Context, orderID int64) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[orderID]; !ok {
		return nil, repository.ErrOrderNotFound
	}
	return append([]model.Delivery{}, m.deliveries[orderID]...), nil
}

func (m *memRepo) findDelivery(id int64) *model.Delivery {
	for orderID := range m.deliveries {
		for i := range m.deliveries[orderID] {
			if m.deliveries[orderID][i].ID == id {
				return &m.deliveries[orderID][i]
			}
		}
	}
	return nil
}

func (m *memRepo) UpdateDeliveryDate(ctx context.Context, deliveryID int64, date time.Time) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.findDelivery(deliveryID)
	if d == nil {
		return nil, repository.ErrDeliveryNotFound
	}
	d.Date = date
	cp := *d
	return &cp, nil
}

func (m *memRepo) UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status model.DeliveryStatus) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.findDelivery(deliveryID)
	if d == nil {
		return nil, repository.ErrDeliveryNotFound
	}
	d.Status = status
	cp := *d
	return &cp, nil
}

func (m *memRepo) CreateTransaction(ctx context.Context, t model.Transaction) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[t.PaymentID]; ok {
		return nil, repository.ErrTransactionExists
	}
	t.ID = m.id()
	stored := t
	m.transactions[t.PaymentID] = &stored
	return &t, nil
}

func (m *memRepo) GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := []model.Transaction{}
	for _, t := range m.transactions {
		if t.UserID == userID {
			res = append(res, *t)
		}
	}
	return res, nil
}

func (m *memRepo) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memRepo) CreateSource(ctx context.Context, startParam, note string) (*model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sources {
		if s.StartParam == startParam {
			return nil, repository.ErrSourceExists
		}
	}
	s := model.Source{ID: m.id(), StartParam: startParam, Note: note}
	m.sources = append(m.sources, s)
	return &s, nil
}

func (m *memRepo) ListSources(ctx context.Context) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Source{}, m.sources...), nil
}

func (m *memRepo) LogSourceVisit(ctx context.Context, startParam string, userID int64, phone *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sources {
		if s.StartParam != startParam {
			continue
		}
		key := startParam + "|" + strconv.FormatInt(userID, 10)
		if m.visits[key] {
			return false, nil
		}
		m.visits[key] = true
		m.sources[i].Visits++
		return true, nil
	}
	return false, repository.ErrSourceNotFound
}

func (m *memRepo) CreateActionLog(ctx context.Context, entry model.UserActionLog) (*model.UserActionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.id()
	m.actions = append(m.actions, entry)
	return &entry, nil
}

func (m *memRepo) ListActionLogs(ctx context.Context, userID *int64, action *string) ([]model.UserActionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := []model.UserActionLog{}
	for _, a := range m.actions {
		if userID != nil && a.UserID != *userID {
			continue
		}
		if action != nil && a.Action != *action {
			continue
		}
		res = append(res, a)
	}
	return res, nil
}

// snapshot копирует изменяемое в транзакции состояние.
type snapshot struct {
	users        map[int64]model.User
	orders       map[int64]model.Order
	cart         map[int64][]model.CartItem
	transactions map[string]model.Transaction
	events       map[string]bool
}

func (m *memRepo) snapshot() snapshot {
	s := snapshot{
		users:        map[int64]model.User{},
		orders:       map[int64]model.Order{},
		cart:         map[int64][]model.CartItem{},
		transactions: map[string]model.Transaction{},
		events:       map[string]bool{},
	}
	for k, v := range m.users {
		s.users[k] = *v
	}
	for k, v := range m.orders {
		s.orders[k] = *v
	}
	for k, v := range m.cart {
		s.cart[k] = append([]model.CartItem{}, v...)
	}
	for k, v := range m.transactions {
		s.transactions[k] = *v
	}
	for k, v := range m.events {
		s.events[k] = v
	}
	return s
}

func (m *memRepo) restore(s snapshot) {
	for k, v := range s.users {
		v := v
		m.users[k] = &v
	}
	for k, v := range s.orders {
		v := v
		m.orders[k] = &v
	}
	m.cart = s.cart
	for k, v := range s.transactions {
		v := v
		m.transactions[k] = &v
	}
	m.events = s.events
}

func (m *memRepo) WithPaymentTx(ctx context.Context, fn func(tx repository.PaymentTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshot()
	if err := fn(&memTx{m: m}); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

// memTx работает с memRepo, уже заблокированным в WithPaymentTx.
type memTx struct {
	m *memRepo
}

func (t *memTx) LockTransaction(ctx context.Context, paymentID string) (*model.Transaction, error) {
	tr, ok := t.m.transactions[paymentID]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	cp := *tr
	return &cp, nil
}

func (t *memTx) MarkEventApplied(ctx context.Context, paymentID string, status model.PaymentStatus) (bool, error) {
	key := paymentID + "|" + string(status)
	if t.m.events[key] {
		return false, nil
	}
	t.m.events[key] = true
	return true, nil
}

func (t *memTx) SetTransactionStatus(ctx context.Context, transactionID int64, status model.PaymentStatus) error {
	for _, tr := range t.m.transactions {
		if tr.ID == transactionID {
			tr.Status = status
			return nil
		}
	}
	return repository.ErrTransactionNotFound
}

func (t *memTx) LockOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	o, ok := t.m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := t.m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (t *memTx) ClearCart(ctx context.Context, userID int64) error {
	delete(t.m.cart, userID)
	return nil
}

func (t *memTx) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	u, ok := t.m.users[userID]
	if !ok {
		return decimal.Zero, repository.ErrUserNotFound
	}
	u.Balance = u.Balance.Add(amount)
	return u.Balance, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []yookassa.SessionRequest
	err      error
	status   string
	sequence int
}

func (g *fakeGateway) CreateSession(ctx context.Context, req yookassa.SessionRequest) (*yookassa.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	g.sequence++
	status := g.status
	if status == "" {
		status = "pending"
	}
	return &yookassa.Session{
		ID:              "pay-" + strconv.Itoa(g.sequence),
		Status:          status,
		ConfirmationURL: "https://yoomoney.ru/checkout/" + strconv.Itoa(g.sequence),
	}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Publish(ctx context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification{}, n.sent...)
}
