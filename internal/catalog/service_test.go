package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

type fakeRepo struct {
	nextID   int64
	products map[int64]*Product
	skus     map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{products: map[int64]*Product{}, skus: map[string]bool{}}
}

func (r *fakeRepo) InsertProduct(_ context.Context, p Product) (int64, error) {
	if r.skus[p.SKU] {
		return 0, ErrDuplicateSKU
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = &p
	r.skus[p.SKU] = true
	return p.ID, nil
}

func (r *fakeRepo) InsertVariant(_ context.Context, v Variant) (int64, error) {
	p, ok := r.products[v.ProductID]
	if !ok {
		return 0, ErrNotFound
	}
	r.nextID++
	v.ID = r.nextID
	p.Variants = append(p.Variants, v)
	return v.ID, nil
}

func (r *fakeRepo) UpdateProduct(_ context.Context, id int64, in UpdateInput) error {
	p, ok := r.products[id]
	if !ok || p.Deleted() {
		return ErrNotFound
	}
	p.SKU, p.Name, p.Price, p.BufferStock = in.SKU, in.Name, in.Price, in.BufferStock
	return nil
}

func (r *fakeRepo) LockForVariants(_ context.Context, id int64) (int64, bool, bool, error) {
	p, ok := r.products[id]
	if !ok {
		return 0, false, false, ErrNotFound
	}
	return p.Stock, p.HasVariants, p.Deleted(), nil
}

func (r *fakeRepo) MarkHasVariants(_ context.Context, id int64) error {
	r.products[id].HasVariants = true
	return nil
}

func (r *fakeRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return *p, nil
}

func (r *fakeRepo) ListProducts(_ context.Context, filter ListFilter, limit, offset int) ([]Product, int, error) {
	var out []Product
	for id := int64(1); id <= r.nextID; id++ {
		p, ok := r.products[id]
		if !ok || (p.Deleted() && !filter.IncludeDeleted) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *p)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeRepo) LowStock(context.Context, int) ([]Product, error) { return nil, nil }

func (r *fakeRepo) ItemChoices(context.Context) ([]inventory.ItemChoice, error) {
	var out []inventory.ItemChoice
	for id := int64(1); id <= r.nextID; id++ {
		p, ok := r.products[id]
		if !ok || p.Deleted() {
			continue
		}
		if !p.HasVariants {
			out = append(out, inventory.ItemChoice{Ref: inventory.ItemRef{ProductID: id}, Label: p.Name, Stock: p.Stock})
		}
		for _, v := range p.LiveVariants() {
			out = append(out, inventory.ItemChoice{Ref: inventory.ItemRef{ProductID: id, VariantID: v.ID}, Label: p.Name + " / " + v.Name})
		}
	}
	return out, nil
}

func (r *fakeRepo) ListCategories(context.Context) ([]Category, error) { return nil, nil }

func (r *fakeRepo) InsertCategory(_ context.Context, name string) (Category, error) {
	return Category{ID: 1, Name: name}, nil
}

func (r *fakeRepo) DeleteCategory(context.Context, int64) error { return ErrCategoryInUse }

type fakeTx struct{ calls int }

func (t *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeLedger struct {
	opened  []inventory.OpenInput
	retired []inventory.RetireInput
	failOn  int
}

func (l *fakeLedger) Open(_ context.Context, in inventory.OpenInput) (inventory.Transaction, error) {
	l.opened = append(l.opened, in)
	if l.failOn > 0 && len(l.opened) == l.failOn {
		return inventory.Transaction{}, inventory.ErrLedgerExists
	}
	return inventory.Transaction{ProductID: in.Ref.ProductID, Action: inventory.ActionCreated, StockChange: in.Qty, StockAfter: in.Qty}, nil
}

func (l *fakeLedger) Retire(_ context.Context, in inventory.RetireInput) ([]inventory.Transaction, error) {
	l.retired = append(l.retired, in)
	return nil, nil
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type fakeUploader struct{ got string }

func (u *fakeUploader) Upload(_ context.Context, filename string, r io.Reader) (string, error) {
	body, _ := io.ReadAll(r)
	u.got = string(body)
	return "https://media.example.test/" + filename, nil
}

type fixture struct {
	svc    *Service
	repo   *fakeRepo
	tx     *fakeTx
	ledger *fakeLedger
	audit  *recordingAudit
}

func newFixture(uploader Uploader) fixture {
	f := fixture{repo: newFakeRepo(), tx: &fakeTx{}, ledger: &fakeLedger{}, audit: &recordingAudit{}}
	cache := revalidate.New(nil, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc = NewService(f.repo, f.tx, f.ledger, cache, uploader, f.audit, Config{DefaultBufferStock: 5}, nil)
	return f
}

func TestCreateOpensProductLedger(t *testing.T) {
	f := newFixture(nil)
	id, err := f.svc.Create(context.Background(), CreateInput{
		SKU: " TEE-1 ", Name: "Tee", Price: decimal.RequireFromString("9.90"), InitialStock: 12, ActorID: 7,
	})
	require.NoError(t, err)
	require.Len(t, f.ledger.opened, 1)
	assert.Equal(t, inventory.ItemRef{ProductID: id}, f.ledger.opened[0].Ref)
	assert.EqualValues(t, 12, f.ledger.opened[0].Qty)
	assert.EqualValues(t, 7, f.ledger.opened[0].ActorID)
	assert.Equal(t, "TEE-1", f.repo.products[id].SKU)
	assert.EqualValues(t, 5, f.repo.products[id].BufferStock)
	assert.Equal(t, []string{"product:create"}, f.audit.actions)
	assert.Equal(t, 1, f.tx.calls)
}

func TestCreateWithVariantsOpensEachVariant(t *testing.T) {
	f := newFixture(nil)
	buffer := int64(0)
	id, err := f.svc.Create(context.Background(), CreateInput{
		SKU: "TEE", Name: "Tee", BufferStock: &buffer,
		Variants: []VariantInput{
			{SKU: "TEE-S", Name: "Small", InitialStock: 3},
			{SKU: "TEE-M", Name: "Medium", InitialStock: 4},
		},
	})
	require.NoError(t, err)
	p := f.repo.products[id]
	assert.True(t, p.HasVariants)
	require.Len(t, p.Variants, 2)
	require.Len(t, f.ledger.opened, 2)
	for i, in := range f.ledger.opened {
		assert.Equal(t, id, in.Ref.ProductID)
		assert.Equal(t, p.Variants[i].ID, in.Ref.VariantID)
	}
	assert.EqualValues(t, 0, p.BufferStock)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Create(context.Background(), CreateInput{Name: "No SKU"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(context.Background(), CreateInput{SKU: "X", Name: "X", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrNegativePrice)

	_, err = f.svc.Create(context.Background(), CreateInput{SKU: "X", Name: "X", InitialStock: -2})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, f.ledger.opened)
}

func TestCreatePropagatesLedgerFailure(t *testing.T) {
	f := newFixture(nil)
	f.ledger.failOn = 1
	_, err := f.svc.Create(context.Background(), CreateInput{SKU: "A", Name: "A"})
	require.ErrorIs(t, err, inventory.ErrLedgerExists)
	assert.Empty(t, f.audit.actions)
}

func TestAddVariantRequiresEmptyProductStock(t *testing.T) {
	f := newFixture(nil)
	id, err := f.svc.Create(context.Background(), CreateInput{SKU: "MUG", Name: "Mug", InitialStock: 2})
	require.NoError(t, err)
	f.repo.products[id].Stock = 2

	_, err = f.svc.AddVariant(context.Background(), id, VariantInput{SKU: "MUG-R", Name: "Red"}, 1)
	require.ErrorIs(t, err, ErrStockOnProduct)
	assert.False(t, f.repo.products[id].HasVariants)

	f.repo.products[id].Stock = 0
	variantID, err := f.svc.AddVariant(context.Background(), id, VariantInput{SKU: "MUG-R", Name: "Red", InitialStock: 6}, 1)
	require.NoError(t, err)
	assert.True(t, f.repo.products[id].HasVariants)
	last := f.ledger.opened[len(f.ledger.opened)-1]
	assert.Equal(t, inventory.ItemRef{ProductID: id, VariantID: variantID}, last.Ref)
	assert.EqualValues(t, 6, last.Qty)
}

func TestAddVariantToDeletedProduct(t *testing.T) {
	f := newFixture(nil)
	id, err := f.svc.Create(context.Background(), CreateInput{SKU: "OLD", Name: "Old"})
	require.NoError(t, err)
	now := time.Now()
	f.repo.products[id].DeletedAt = &now

	_, err = f.svc.AddVariant(context.Background(), id, VariantInput{SKU: "OLD-1", Name: "One"}, 1)
	require.ErrorIs(t, err, ErrProductDeleted)
}

func TestDeleteRetiresThroughLedger(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.svc.Delete(context.Background(), 42, 3))
	require.NoError(t, f.svc.DeleteVariant(context.Background(), 42, 43, 3))
	require.Len(t, f.ledger.retired, 2)
	assert.Equal(t, inventory.ItemRef{ProductID: 42}, f.ledger.retired[0].Ref)
	assert.Equal(t, inventory.ItemRef{ProductID: 42, VariantID: 43}, f.ledger.retired[1].Ref)
	assert.Equal(t, []string{"product:delete", "variant:delete"}, f.audit.actions)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(nil)
	for _, sku := range []string{"A", "B", "C"} {
		_, err := f.svc.Create(context.Background(), CreateInput{SKU: sku, Name: "Item " + sku})
		require.NoError(t, err)
	}
	res, err := f.svc.List(context.Background(), ListFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "C", res.Items[0].SKU)
	assert.Equal(t, 3, res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
}

func TestStockOptionsListsLiveVariants(t *testing.T) {
	f := newFixture(nil)
	id, err := f.svc.Create(context.Background(), CreateInput{SKU: "CAP", Name: "Cap", Variants: []VariantInput{
		{SKU: "CAP-B", Name: "Blue"}, {SKU: "CAP-G", Name: "Green"},
	}})
	require.NoError(t, err)
	now := time.Now()
	f.repo.products[id].Variants[0].DeletedAt = &now

	opts, err := f.svc.StockOptions(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, opts.HasVariants)
	require.Len(t, opts.Variants, 1)
	assert.Equal(t, "CAP-G", opts.Variants[0].SKU)
}

func TestUploadImage(t *testing.T) {
	_, err := newFixture(nil).svc.UploadImage(context.Background(), "a.png", strings.NewReader("x"))
	require.ErrorIs(t, err, shared.ErrValidation)

	up := &fakeUploader{}
	url, err := newFixture(up).svc.UploadImage(context.Background(), "a.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.test/a.png", url)
	assert.Equal(t, "png-bytes", up.got)
}

func TestCategories(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.CreateCategory(context.Background(), "   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := f.svc.CreateCategory(context.Background(), " Apparel ")
	require.NoError(t, err)
	assert.Equal(t, "Apparel", c.Name)

	err = f.svc.DeleteCategory(context.Background(), 1)
	require.True(t, errors.Is(err, ErrCategoryInUse))
	assert.Equal(t, "Category is used by products", shared.UserSafeMessage(err))
}

func TestItemChoices(t *testing.T) {
	f := newFixture(nil)
	plain, err := f.svc.Create(context.Background(), CreateInput{SKU: "P", Name: "Plain"})
	require.NoError(t, err)
	multi, err := f.svc.Create(context.Background(), CreateInput{SKU: "M", Name: "Multi", Variants: []VariantInput{{SKU: "M-1", Name: "One"}}})
	require.NoError(t, err)

	choices, err := f.svc.ItemChoices(context.Background())
	require.NoError(t, err)
	require.Len(t, choices, 2)
	assert.Equal(t, inventory.ItemRef{ProductID: plain}, choices[0].Ref)
	assert.Equal(t, multi, choices[1].Ref.ProductID)
	assert.NotZero(t, choices[1].Ref.VariantID)
	assert.Equal(t, "Multi / One", choices[1].Label)
}

func TestGetRefreshesVendorNameAfterVendorRevalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := revalidate.New(rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	repo := newFakeRepo()
	svc := NewService(repo, &fakeTx{}, &fakeLedger{}, cache, nil, &recordingAudit{}, Config{}, nil)
	ctx := context.Background()
	id, err := svc.Create(ctx, CreateInput{SKU: "BOLT", Name: "Bolt"})
	require.NoError(t, err)
	repo.products[id].VendorName = "Acme"

	p, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Acme", p.VendorName)

	repo.products[id].VendorName = "Acme Renamed"
	p, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Acme", p.VendorName, "served from cache until revalidated")

	require.NoError(t, cache.Revalidate(ctx, revalidate.TagVendors))
	p, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Acme Renamed", p.VendorName)

	repo.products[id].CategoryName = "Hardware"
	require.NoError(t, cache.Revalidate(ctx, revalidate.TagCategories))
	p, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Hardware", p.CategoryName)
}
