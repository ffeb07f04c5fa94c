package customers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/rbac"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
	"github.com/stockbook/stockbook/internal/view"
)

type memoryRepo struct {
	items       map[int64]Customer
	nextID      int64
	withReturns map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Customer{}, withReturns: map[int64]bool{}}
}

func (m *memoryRepo) List(_ context.Context, search string, limit, offset int) ([]Customer, int, error) {
	var out []Customer
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.items[id]
		if ok && strings.Contains(strings.ToLower(c.Name), strings.ToLower(search)) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Options(context.Context) ([]shared.Option, error) { return nil, nil }

func (m *memoryRepo) Get(_ context.Context, id int64) (Customer, error) {
	c, ok := m.items[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) Create(_ context.Context, in Input) (int64, error) {
	m.nextID++
	m.items[m.nextID] = Customer{ID: m.nextID, Code: in.Code, Name: in.Name, Email: in.Email, IsActive: in.IsActive}
	return m.nextID, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, in Input) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	m.items[id] = Customer{ID: id, Code: in.Code, Name: in.Name, Email: in.Email, IsActive: in.IsActive}
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if m.withReturns[id] {
		return ErrCustomerInUse
	}
	delete(m.items, id)
	return nil
}

func TestServiceCreateAndUpdate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, revalidate.New(nil, time.Minute, nil), nil, nil)
	ctx := context.Background()

	id, err := svc.Create(ctx, Input{Code: "c-1", Name: "Dewi", Email: "DEWI@shop.test"})
	require.NoError(t, err)
	assert.Equal(t, "C-1", repo.items[id].Code)
	assert.Equal(t, "dewi@shop.test", repo.items[id].Email)

	err = svc.Update(ctx, id, Input{Code: "C-1", Name: ""})
	require.ErrorIs(t, err, shared.ErrValidation)

	err = svc.Update(ctx, 99, Input{Code: "C-9", Name: "Nobody"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	res, err := svc.List(ctx, ListFilter{Search: "dew"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Pagination.Total)
}

type harness struct {
	router   http.Handler
	repo     *memoryRepo
	sessions *shared.SessionManager
	sess     *shared.Session
}

func newHarness(t *testing.T, role string) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := view.NewEngine()
	require.NoError(t, err)
	repo := newMemoryRepo()
	svc := NewService(repo, revalidate.New(client, time.Minute, nil), nil, nil)
	h := NewHandler(nil, svc, engine, shared.NewCSRFManager("secret"), rbac.Middleware{})

	sessions := shared.NewSessionManager(client, "sb_session", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("1", role)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/customers", h.MountRoutes)
	return &harness{router: r, repo: repo, sessions: sessions, sess: sess}
}

func (h *harness) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStaffCannotEdit(t *testing.T) {
	h := newHarness(t, rbac.RoleStaff)
	req := httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(url.Values{"code": {"C1"}, "name": {"A"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "/customers/new")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/customers/new", rec.Header().Get("Location"))
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)
	assert.Empty(t, h.repo.items)
}

func TestHandlerCreateValidatesForm(t *testing.T) {
	h := newHarness(t, rbac.RoleAdmin)
	rec := h.post("/customers/", url.Values{"code": {"C1"}, "email": {"nope"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required")
	assert.Contains(t, rec.Body.String(), "Enter a valid e-mail address")

	rec = h.post("/customers/", url.Values{"code": {"c1"}, "name": {"Budi"}, "is_active": {"on"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/customers", rec.Header().Get("Location"))
	require.Len(t, h.repo.items, 1)
	assert.True(t, h.repo.items[1].IsActive)
	assert.Equal(t, "Customer saved.", h.sess.PopFlash().Message)
}

func TestHandlerDeleteInUseFlashesError(t *testing.T) {
	h := newHarness(t, rbac.RoleAdmin)
	h.repo.nextID = 1
	h.repo.items[1] = Customer{ID: 1, Code: "C1", Name: "Budi"}
	h.repo.withReturns[1] = true

	rec := h.post("/customers/1/delete", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)
	assert.Equal(t, "Customer has recorded returns and cannot be deleted", flash.Message)
	assert.Contains(t, h.repo.items, int64(1))
}
