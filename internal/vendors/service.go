package vendors

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts vendor persistence.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Vendor, int, error)
	Options(ctx context.Context) ([]shared.Option, error)
	Get(ctx context.Context, id int64) (Vendor, error)
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

// Service manages vendors.
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

// List returns a page of vendors.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	key := revalidate.Key("vendors", filter.Search, strconv.FormatBool(filter.ActiveOnly), filter.SortBy, filter.SortDir,
		strconv.Itoa(page.Page), strconv.Itoa(page.PerPage))
	var result ListResult
	err := s.cache.Fetch(ctx, key, []string{revalidate.TagVendors, revalidate.TagProducts}, &result,
		func(ctx context.Context) (any, error) {
			items, total, err := s.repo.List(ctx, filter, page.PerPage, page.Offset())
			if err != nil {
				return nil, err
			}
			return ListResult{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
		})
	if err != nil {
		return ListResult{}, fmt.Errorf("vendors: list: %w", err)
	}
	return result, nil
}

// Options lists active vendors for select inputs.
func (s *Service) Options(ctx context.Context) ([]shared.Option, error) {
	var out []shared.Option
	err := s.cache.Fetch(ctx, "vendors:options", []string{revalidate.TagVendors}, &out,
		func(ctx context.Context) (any, error) { return s.repo.Options(ctx) })
	return out, err
}

// Get returns one vendor.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create adds a vendor.
func (s *Service) Create(ctx context.Context, in Input) (int64, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return 0, err
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("vendors: create %q: %w", in.Code, err)
	}
	s.changed(ctx, id, "vendor:create", in.ActorID)
	return id, nil
}

// Update edits a vendor.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	in = normalize(in)
	if err := validate(in); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		return fmt.Errorf("vendors: update %d: %w", id, err)
	}
	s.changed(ctx, id, "vendor:update", in.ActorID)
	return nil
}

// Delete removes a vendor that no product references.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("vendors: delete %d: %w", id, err)
	}
	s.changed(ctx, id, "vendor:delete", actorID)
	return nil
}

func (s *Service) changed(ctx context.Context, id int64, action string, actorID int64) {
	tags := []string{revalidate.TagVendors, revalidate.TagProducts, revalidate.TagDashboard}
	if err := s.cache.Revalidate(ctx, tags...); err != nil {
		s.logger.Warn("vendors: revalidate", slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "vendor", EntityID: strconv.FormatInt(id, 10)})
	if err != nil {
		s.logger.Warn("vendors: audit", slog.Any("error", err))
	}
}

func normalize(in Input) Input {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Address = strings.TrimSpace(in.Address)
	return in
}

func validate(in Input) error {
	errs := shared.FieldErrors(in)
	for _, field := range []string{"code", "name", "email", "phone", "address"} {
		if msg, ok := errs[field]; ok {
			return shared.Invalid(field + ": " + strings.ToLower(msg))
		}
	}
	return nil
}
