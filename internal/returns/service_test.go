package returns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

type memoryRepo struct {
	customers  map[int64]bool
	rows       []Return
	failInsert bool
}

func (m *memoryRepo) CustomerActive(_ context.Context, id int64) (bool, error) {
	active, ok := m.customers[id]
	if !ok {
		return false, ErrCustomerNotFound
	}
	return active, nil
}

func (m *memoryRepo) Insert(_ context.Context, ret Return) (int64, error) {
	if m.failInsert {
		return 0, errors.New("insert failed")
	}
	ret.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, ret)
	return ret.ID, nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]Return, int, error) {
	var out []Return
	for _, r := range m.rows {
		if filter.CustomerID == 0 || r.CustomerID == filter.CustomerID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeLedger struct {
	inputs []inventory.MutationInput
	err    error
}

func (l *fakeLedger) Return(_ context.Context, in inventory.MutationInput) (inventory.Transaction, error) {
	if l.err != nil {
		return inventory.Transaction{}, l.err
	}
	l.inputs = append(l.inputs, in)
	return inventory.Transaction{ID: int64(100 + len(l.inputs)), Action: inventory.ActionReturned, StockChange: in.Qty}, nil
}

type fakeKeys struct {
	claimed  map[string]bool
	released []string
}

func (k *fakeKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	if k.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	k.claimed[key] = true
	return nil
}

func (k *fakeKeys) Release(_ context.Context, key string) error {
	delete(k.claimed, key)
	k.released = append(k.released, key)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	ledger *fakeLedger
	keys   *fakeKeys
}

func newFixture() fixture {
	f := fixture{
		repo:   &memoryRepo{customers: map[int64]bool{1: true, 2: false}},
		ledger: &fakeLedger{},
		keys:   &fakeKeys{claimed: map[string]bool{}},
	}
	f.svc = NewService(f.repo, passTx{}, f.ledger, f.keys, revalidate.New(nil, time.Minute, nil), nil, nil)
	return f
}

func TestCreateLinksLedgerRow(t *testing.T) {
	f := newFixture()
	ret, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID: 1, Item: inventory.ItemRef{ProductID: 5, VariantID: 6}, Quantity: 2, Reason: " damaged box ", ActorID: 9,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 101, ret.TransactionID)
	assert.EqualValues(t, 1, ret.ID)
	assert.Equal(t, "damaged box", ret.Reason)
	require.Len(t, f.ledger.inputs, 1)
	in := f.ledger.inputs[0]
	assert.Equal(t, "return", in.RefType)
	assert.Equal(t, inventory.ItemRef{ProductID: 5, VariantID: 6}, in.Ref)
	assert.EqualValues(t, 2, in.Qty)
	assert.Empty(t, in.IdempotencyKey)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 0, Reason: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{CustomerID: 2, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x"})
	require.ErrorIs(t, err, ErrCustomerInactive)

	_, err = f.svc.Create(ctx, CreateInput{CustomerID: 3, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.ledger.inputs)
}

func TestCreateDuplicateSubmission(t *testing.T) {
	f := newFixture()
	key := uuid.NewString()
	in := CreateInput{CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x", IdempotencyKey: key}
	_, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, f.ledger.inputs, 1)
}

func TestCreateReleasesKeyOnFailure(t *testing.T) {
	f := newFixture()
	f.ledger.err = inventory.ErrItemDeleted
	key := uuid.NewString()
	_, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x", IdempotencyKey: key,
	})
	require.ErrorIs(t, err, inventory.ErrItemDeleted)
	assert.Equal(t, []string{key}, f.keys.released)

	f.ledger.err = nil
	f.repo.failInsert = true
	_, err = f.svc.Create(context.Background(), CreateInput{
		CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x", IdempotencyKey: key,
	})
	require.Error(t, err)
	assert.Equal(t, []string{key, key}, f.keys.released)
}

func TestListRejectsInvertedRange(t *testing.T) {
	f := newFixture()
	now := time.Now()
	_, err := f.svc.List(context.Background(), ListFilter{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.Create(context.Background(), CreateInput{CustomerID: 1, Item: inventory.ItemRef{ProductID: 5}, Quantity: 1, Reason: "x"})
	require.NoError(t, err)
	res, err := f.svc.List(context.Background(), ListFilter{CustomerID: 1})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}
