package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fabrica-mrp/fabrica/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double-posting on retried requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates ledger postings and reads.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock}
}

// PostMovement appends one ledger row and updates the cached balance in a
// single transaction with the balance row locked. OUT movements that would
// drive the balance negative fail unless negative stock is allowed by config;
// when allowed the violation is logged, not rejected.
func (s *Service) PostMovement(ctx context.Context, input MovementInput) (StockMovement, error) {
	if err := validateInput(input); err != nil {
		return StockMovement{}, err
	}

	insertedKey := false
	reference := defaultReference(input.Reference)
	key := fmt.Sprintf("%s:%s:%d", input.MovementType, reference, input.ProductID)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return StockMovement{}, err
		}
		insertedKey = true
	}
	input.Reference = reference

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.PostMovementTx(ctx, tx, input)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockMovement{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("inventory:%s", input.MovementType),
			Entity:   shared.EntityMovement,
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"qty":        input.Quantity,
				"reference":  reference,
			},
		})
	}
	return movement, nil
}

// PostMovementTx posts inside an already-open transaction, so callers like
// manufacturing close can make their status change and the postings atomic.
// Idempotency and audit stay with the caller.
func (s *Service) PostMovementTx(ctx context.Context, tx TxRepository, input MovementInput) (StockMovement, error) {
	if err := validateInput(input); err != nil {
		return StockMovement{}, err
	}

	now := time.Now().UTC()
	movement := StockMovement{
		ProductID:    input.ProductID,
		MovementType: input.MovementType,
		Quantity:     input.Quantity,
		UnitCost:     input.UnitCost,
		TotalValue:   input.Quantity * input.UnitCost,
		Reference:    defaultReference(input.Reference),
		ReferenceID:  input.ReferenceID,
		Notes:        input.Notes,
		PostedAt:     now,
		CreatedBy:    input.ActorID,
	}

	balance, err := tx.GetBalanceForUpdate(ctx, input.ProductID)
	if err != nil {
		return StockMovement{}, err
	}
	newQty := balance + input.Quantity
	if input.MovementType == MovementOut {
		newQty = balance - input.Quantity
		if newQty < -0.0001 {
			if !s.allowNeg {
				return StockMovement{}, fmt.Errorf("%w: product %d has %.4f, requested %.4f",
					ErrInsufficientStock, input.ProductID, balance, input.Quantity)
			}
			s.logger.Warn("stock driven negative",
				slog.Int64("product_id", input.ProductID),
				slog.Float64("balance", balance),
				slog.Float64("quantity", input.Quantity))
		}
	}
	if math.Abs(newQty) < 0.0001 {
		newQty = 0
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return StockMovement{}, err
	}
	movement.ID = id
	if err := tx.UpsertBalance(ctx, input.ProductID, newQty); err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

func validateInput(input MovementInput) error {
	if input.ProductID <= 0 {
		return ErrProductRequired
	}
	if !input.MovementType.Valid() {
		return fmt.Errorf("inventory: unknown movement type %q", input.MovementType)
	}
	if input.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return ErrInvalidUnitCost
	}
	if input.ReferenceID != "" {
		if _, err := uuid.Parse(input.ReferenceID); err != nil {
			return fmt.Errorf("inventory: invalid reference id: %w", err)
		}
	}
	return nil
}

func defaultReference(ref string) string {
	if ref != "" {
		return ref
	}
	return fmt.Sprintf("INV-%d", time.Now().UTC().UnixNano())
}

// CurrentStock reads the cached balance for a product.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (float64, error) {
	if productID <= 0 {
		return 0, ErrProductRequired
	}
	return s.repo.CurrentStock(ctx, productID)
}

// History lists ledger rows, newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]StockMovement, error) {
	return s.repo.History(ctx, filter)
}

// Reconcile replays the full ledger per product and compares Σ IN − Σ OUT with
// the cached balance. With repair set, drifted balances are rewritten from the
// ledger.
func (s *Service) Reconcile(ctx context.Context, repair bool) ([]Drift, error) {
	totals, err := s.repo.LedgerTotals(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := s.repo.CachedBalances(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, t := range totals {
		ledger := t.TotalIn - t.TotalOut
		if math.Abs(cached[t.ProductID]-ledger) < 0.0001 {
			continue
		}
		drifts = append(drifts, Drift{ProductID: t.ProductID, Cached: cached[t.ProductID], Ledger: ledger})
		if repair {
			if err := s.repo.SetBalance(ctx, t.ProductID, ledger); err != nil {
				return drifts, err
			}
			s.logger.Warn("stock balance repaired",
				slog.Int64("product_id", t.ProductID),
				slog.Float64("cached", cached[t.ProductID]),
				slog.Float64("ledger", ledger))
		}
	}
	return drifts, nil
}
