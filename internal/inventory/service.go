package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stockbook/stockbook/internal/platform/db"
	"github.com/stockbook/stockbook/internal/revalidate"
	"github.com/stockbook/stockbook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	History(ctx context.Context, ref ItemRef) ([]Transaction, error)
	List(ctx context.Context, filter LedgerFilter, limit, offset int) ([]Transaction, int, error)
	CurrentStock(ctx context.Context, productID int64) (ProductStock, error)
	ProductIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims submission keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key string) error
}

// Revalidator invalidates cached reads.
type Revalidator interface {
	Revalidate(ctx context.Context, tags ...string) error
}

// MutationRecorder counts posted ledger rows.
type MutationRecorder interface {
	ObserveStockMutation(action string)
}

// Deps groups optional collaborators. Nil members are skipped.
type Deps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       Revalidator
	Metrics     MutationRecorder
	Logger      *slog.Logger
}

// Service posts stock movements to the ledger.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       Revalidator
	metrics     MutationRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Open writes the CREATED row of a new product or variant.
func (s *Service) Open(ctx context.Context, input OpenInput) (Transaction, error) {
	if input.Qty < 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.apply(ctx, tx, input.Ref, ActionCreated, input.Qty, rowMeta{Note: input.Note, ActorID: input.ActorID})
		return err
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("inventory: open %s: %w", input.Ref, err)
	}
	s.afterMutation(ctx, posted)
	return posted, nil
}

// Increase adds stock.
func (s *Service) Increase(ctx context.Context, input MutationInput) (Transaction, error) {
	return s.mutate(ctx, ActionIncreased, input)
}

// Decrease removes stock, refusing to go below zero.
func (s *Service) Decrease(ctx context.Context, input MutationInput) (Transaction, error) {
	return s.mutate(ctx, ActionDecreased, input)
}

// Return books goods sent back by a customer.
func (s *Service) Return(ctx context.Context, input MutationInput) (Transaction, error) {
	return s.mutate(ctx, ActionReturned, input)
}

// Retire zeroes the stock of an item and soft-deletes it. Retiring a product
// with variants retires each live variant first.
func (s *Service) Retire(ctx context.Context, input RetireInput) ([]Transaction, error) {
	var posted []Transaction
	meta := rowMeta{Note: input.Note, ActorID: input.ActorID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.LockProduct(ctx, input.Ref.ProductID)
		if err != nil {
			return err
		}
		if product.Deleted {
			return ErrItemDeleted
		}
		now := s.now()
		var targets []ItemRef
		switch {
		case input.Ref.IsVariant():
			targets = []ItemRef{input.Ref}
		case product.HasVariants:
			variants, err := tx.LockLiveVariants(ctx, product.Ref.ProductID)
			if err != nil {
				return err
			}
			for _, v := range variants {
				targets = append(targets, v.Ref)
			}
		default:
			targets = []ItemRef{product.Ref}
		}
		for _, ref := range targets {
			row, err := s.apply(ctx, tx, ref, ActionDeleted, 0, meta)
			if err != nil {
				return err
			}
			if err := tx.MarkDeleted(ctx, ref, now); err != nil {
				return err
			}
			posted = append(posted, row)
		}
		if !input.Ref.IsVariant() && product.HasVariants {
			return tx.MarkDeleted(ctx, product.Ref, now)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: retire %s: %w", input.Ref, err)
	}
	s.afterMutation(ctx, posted...)
	return posted, nil
}

// History returns the ledger of a product (all variants) or a single variant, oldest first.
func (s *Service) History(ctx context.Context, ref ItemRef) ([]Transaction, error) {
	if ref.ProductID == 0 {
		return nil, ErrItemNotFound
	}
	return s.repo.History(ctx, ref)
}

// List pages through the ledger, newest first.
func (s *Service) List(ctx context.Context, filter LedgerFilter) (LedgerPage, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return LedgerPage{}, shared.Invalid("unknown action filter")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return LedgerPage{}, shared.Invalid("end date is before start date")
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	items, total, err := s.repo.List(ctx, filter, page.PerPage, page.Offset())
	if err != nil {
		return LedgerPage{}, fmt.Errorf("inventory: list ledger: %w", err)
	}
	return LedgerPage{Items: items, Pagination: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// Verify replays the ledger of one product against its stored stock.
func (s *Service) Verify(ctx context.Context, productID int64) (Report, error) {
	stock, err := s.repo.CurrentStock(ctx, productID)
	if err != nil {
		return Report{}, err
	}
	rows, err := s.repo.History(ctx, ItemRef{ProductID: productID})
	if err != nil {
		return Report{}, err
	}
	return Replay(stock, rows), nil
}

// VerifyAll checks every product and returns the failing ones.
func (s *Service) VerifyAll(ctx context.Context) (AuditResult, error) {
	ids, err := s.repo.ProductIDs(ctx)
	if err != nil {
		return AuditResult{}, err
	}
	result := AuditResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		report, err := s.Verify(ctx, id)
		if err != nil {
			return result, fmt.Errorf("inventory: verify product %d: %w", id, err)
		}
		result.Checked++
		if !report.OK() {
			result.Failing = append(result.Failing, report)
		}
	}
	return result, nil
}

type rowMeta struct {
	Note    string
	RefType string
	RefID   string
	ActorID int64
}

func (s *Service) mutate(ctx context.Context, action Action, input MutationInput) (Transaction, error) {
	if input.Qty <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if input.Ref.ProductID == 0 {
		return Transaction{}, ErrItemNotFound
	}
	claimed := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			return Transaction{}, err
		}
		claimed = true
	}
	change := input.Qty
	if action == ActionDecreased {
		change = -input.Qty
	}
	meta := rowMeta{Note: input.Note, RefType: input.RefType, RefID: input.RefID, ActorID: input.ActorID}
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.apply(ctx, tx, input.Ref, action, change, meta)
		return err
	})
	if err != nil {
		if claimed {
			if relErr := s.idempotency.Release(ctx, input.IdempotencyKey); relErr != nil {
				s.logger.Warn("inventory: release idempotency key", slog.Any("error", relErr))
			}
		}
		return Transaction{}, fmt.Errorf("inventory: %s %s: %w", strings.ToLower(string(action)), input.Ref, err)
	}
	s.afterMutation(ctx, posted)
	return posted, nil
}

// apply locks the product (then the variant), computes the new balance and
// writes one ledger row. For DELETED the change is derived from current stock.
func (s *Service) apply(ctx context.Context, tx TxRepository, ref ItemRef, action Action, change int64, meta rowMeta) (Transaction, error) {
	product, err := tx.LockProduct(ctx, ref.ProductID)
	if err != nil {
		return Transaction{}, err
	}
	if product.Deleted {
		return Transaction{}, ErrItemDeleted
	}
	item := product
	if ref.IsVariant() {
		item, err = tx.LockVariant(ctx, ref)
		if err != nil {
			return Transaction{}, err
		}
		if item.Deleted {
			return Transaction{}, ErrItemDeleted
		}
	} else if product.HasVariants {
		return Transaction{}, ErrVariantRequired
	}

	if action == ActionCreated {
		n, err := tx.CountTransactions(ctx, ref)
		if err != nil {
			return Transaction{}, err
		}
		if n > 0 || item.Stock != 0 {
			return Transaction{}, ErrLedgerExists
		}
	}
	if action == ActionDeleted {
		change = -item.Stock
	}
	after := item.Stock + change
	if after < 0 {
		return Transaction{}, ErrInsufficientStock
	}

	row, err := tx.InsertTransaction(ctx, Transaction{
		ProductID:   ref.ProductID,
		VariantID:   ref.VariantID,
		Action:      action,
		StockBefore: item.Stock,
		StockChange: change,
		StockAfter:  after,
		Note:        strings.TrimSpace(meta.Note),
		RefType:     meta.RefType,
		RefID:       meta.RefID,
		ActorID:     meta.ActorID,
	})
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.SetStock(ctx, ref, after); err != nil {
		return Transaction{}, err
	}
	if ref.IsVariant() && change != 0 {
		if err := tx.SetStock(ctx, product.Ref, product.Stock+change); err != nil {
			return Transaction{}, err
		}
	}
	return row, nil
}

// afterMutation revalidates caches, audits and counts once the surrounding
// transaction has committed.
func (s *Service) afterMutation(ctx context.Context, rows ...Transaction) {
	if len(rows) == 0 {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		seen := make(map[int64]struct{})
		for _, row := range rows {
			if _, ok := seen[row.ProductID]; !ok {
				seen[row.ProductID] = struct{}{}
				if s.cache != nil {
					if err := s.cache.Revalidate(ctx, revalidate.StockTags(row.ProductID)...); err != nil {
						s.logger.Warn("inventory: revalidate", slog.Int64("product_id", row.ProductID), slog.Any("error", err))
					}
				}
			}
			if s.metrics != nil {
				s.metrics.ObserveStockMutation(string(row.Action))
			}
			if s.audit != nil {
				err := s.audit.Record(ctx, shared.AuditLog{
					ActorID:  row.ActorID,
					Action:   "stock:" + strings.ToLower(string(row.Action)),
					Entity:   "stock_transaction",
					EntityID: strconv.FormatInt(row.ID, 10),
					Meta: map[string]any{
						"product_id":   row.ProductID,
						"variant_id":   row.VariantID,
						"stock_before": row.StockBefore,
						"stock_change": row.StockChange,
						"stock_after":  row.StockAfter,
					},
				})
				if err != nil {
					s.logger.Warn("inventory: audit", slog.Int64("transaction_id", row.ID), slog.Any("error", err))
				}
			}
			s.logger.Info("stock mutation",
				slog.String("action", string(row.Action)),
				slog.Int64("product_id", row.ProductID),
				slog.Int64("variant_id", row.VariantID),
				slog.Int64("stock_change", row.StockChange),
				slog.Int64("stock_after", row.StockAfter))
		}
	})
}
