package returns

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts returns persistence.
type RepositoryPort interface {
	CustomerActive(ctx context.Context, id int64) (bool, error)
	Insert(ctx context.Context, ret Return) (int64, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Return, int, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger books returned stock.
type Ledger interface {
	Return(ctx context.Context, input inventory.MutationInput) (inventory.Transaction, error)
}

// IdempotencyPort guards against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
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

// Service records customer returns.
type Service struct {
	repo        RepositoryPort
	tx          TxRunner
	ledger      Ledger
	idempotency IdempotencyPort
	cache       Cache
	audit       AuditPort
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, tx TxRunner, ledger Ledger, idempotency IdempotencyPort, cache Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, ledger: ledger, idempotency: idempotency, cache: cache, audit: audit, logger: logger}
}

// Create books the returned quantity on the ledger and stores the return in
// the same transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (Return, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if errs := shared.FieldErrors(in); errs != nil {
		for _, field := range []string{"customerid", "quantity", "reason", "idempotencykey"} {
			if msg, ok := errs[field]; ok {
				return Return{}, shared.Invalid(field + ": " + strings.ToLower(msg))
			}
		}
	}
	if in.Item.ProductID <= 0 {
		return Return{}, inventory.ErrItemNotFound
	}
	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, "returns"); err != nil {
			return Return{}, err
		}
	}

	ret := Return{
		CustomerID: in.CustomerID,
		ProductID:  in.Item.ProductID,
		VariantID:  in.Item.VariantID,
		Quantity:   in.Quantity,
		Reason:     in.Reason,
		CreatedBy:  in.ActorID,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		active, err := s.repo.CustomerActive(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if !active {
			return ErrCustomerInactive
		}
		row, err := s.ledger.Return(ctx, inventory.MutationInput{
			Ref:     in.Item,
			Qty:     in.Quantity,
			Note:    in.Reason,
			RefType: "return",
			RefID:   "customer:" + strconv.FormatInt(in.CustomerID, 10),
			ActorID: in.ActorID,
		})
		if err != nil {
			return err
		}
		ret.TransactionID = row.ID
		ret.CreatedAt = row.CreatedAt
		ret.ID, err = s.repo.Insert(ctx, ret)
		return err
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if relErr := s.idempotency.Release(ctx, in.IdempotencyKey); relErr != nil {
				s.logger.Warn("returns: release idempotency key", slog.Any("error", relErr))
			}
		}
		return Return{}, fmt.Errorf("returns: create: %w", err)
	}

	if err := s.cache.Revalidate(ctx, revalidate.TagReturns, revalidate.TagCustomers, revalidate.TagDashboard); err != nil {
		s.logger.Warn("returns: revalidate", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "return:create",
			Entity:   "return",
			EntityID: strconv.FormatInt(ret.ID, 10),
			Meta:     map[string]any{"customer_id": ret.CustomerID, "item": in.Item.Key(), "quantity": ret.Quantity, "transaction_id": ret.TransactionID},
		}); err != nil {
			s.logger.Warn("returns: audit", slog.Any("error", err))
		}
	}
	s.logger.Info("return recorded", slog.Int64("return_id", ret.ID), slog.Int64("customer_id", ret.CustomerID),
		slog.String("item", in.Item.Key()), slog.Int64("quantity", ret.Quantity))
	return ret, nil
}

// List returns a page of returns.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return ListResult{}, ErrInvalidRange
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	key := revalidate.Key("returns", revalidate.IntPart(filter.CustomerID), timePart(filter.From), timePart(filter.To),
		strconv.Itoa(page.Page), strconv.Itoa(page.PerPage))
	var result ListResult
	err := s.cache.Fetch(ctx, key, []string{revalidate.TagReturns}, &result, func(ctx context.Context) (any, error) {
		items, total, err := s.repo.List(ctx, filter, page.PerPage, page.Offset())
		if err != nil {
			return nil, err
		}
		return ListResult{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("returns: list: %w", err)
	}
	return result, nil
}

func timePart(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

var _ TxRunner = (*db.TxManager)(nil)
