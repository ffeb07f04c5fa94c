package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts customer persistence.
type RepositoryPort interface {
	List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error)
	Options(ctx context.Context) ([]shared.Option, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, in Input) (int64, error)
	Update(ctx context.Context, id int64, in Input) error
	Delete(ctx context.Context, id int64) error
}

// Cache serves tagged reads and invalidates them.
type Cache interface {
	Fetch(ctx context.Context, key string, tags []string, dest any, loader revalidate.Loader) error
	Revalidate(ctx context.Context, tags ...string) error
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages customers.
type Service struct {
	repo   RepositoryPort
	cache  Cache
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	search := strings.TrimSpace(filter.Search)
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	var result ListResult
	err := s.cache.Fetch(ctx, revalidate.Key("customers", search, strconv.Itoa(page.Page), strconv.Itoa(page.PerPage)),
		[]string{revalidate.TagCustomers, revalidate.TagReturns}, &result,
		func(ctx context.Context) (any, error) {
			items, total, err := s.repo.List(ctx, search, page.PerPage, page.Offset())
			if err != nil {
				return nil, err
			}
			return ListResult{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
		})
	if err != nil {
		return ListResult{}, fmt.Errorf("customers: list: %w", err)
	}
	return result, nil
}

// Options lists active customers for the returns form.
func (s *Service) Options(ctx context.Context) ([]shared.Option, error) {
	var out []shared.Option
	err := s.cache.Fetch(ctx, "customers:options", []string{revalidate.TagCustomers}, &out,
		func(ctx context.Context) (any, error) { return s.repo.Options(ctx) })
	return out, err
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// Create adds a customer.
func (s *Service) Create(ctx context.Context, in Input) (int64, error) {
	in = clean(in)
	if err := check(in); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("customers: create %q: %w", in.Code, err)
	}
	s.changed(ctx, id, "customer:create", in.ActorID)
	return id, nil
}

// Update edits a customer.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	in = clean(in)
	if err := check(in); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return fmt.Errorf("customers: update %d: %w", id, err)
	}
	s.changed(ctx, id, "customer:update", in.ActorID)
	return nil
}

// Delete removes a customer that has no returns.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("customers: delete %d: %w", id, err)
	}
	s.changed(ctx, id, "customer:delete", actorID)
	return nil
}

func (s *Service) changed(ctx context.Context, id int64, action string, actorID int64) {
	if err := s.cache.Revalidate(ctx, revalidate.TagCustomers, revalidate.TagDashboard); err != nil {
		s.logger.Warn("customers: revalidate", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID: actorID, Action: action, Entity: "customer", EntityID: strconv.FormatInt(id, 10),
		}); err != nil {
			s.logger.Warn("customers: audit", slog.Any("error", err))
		}
	}
}

func clean(in Input) Input {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Address = strings.TrimSpace(in.Address)
	return in
}

func check(in Input) error {
	errs := shared.FieldErrors(in)
	if errs == nil {
		return nil
	}
	for _, field := range []string{"code", "name", "email", "phone", "address"} {
		if msg, ok := errs[field]; ok {
			return shared.Invalid(field + ": " + strings.ToLower(msg))
		}
	}
	return shared.Invalid("invalid customer")
}
