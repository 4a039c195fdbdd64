package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
)

// Store keeps orders, portfolios, the settlement journal and remediations in
// process memory. Transactions stage their writes and apply them atomically on
// commit; portfolio locks are per owner and held until commit or rollback.
// Read transactions hold off commits until they finish.
type Store struct {
	mu       sync.Mutex
	commitMu sync.RWMutex

	orders       map[uuid.UUID]models.Order
	portfolios   map[uuid.UUID]models.Portfolio
	settlements  map[uuid.UUID]models.Settlement
	history      map[uuid.UUID][]uuid.UUID
	remediations []models.Remediation

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

func NewStore() *Store {
	return &Store{
		orders:      make(map[uuid.UUID]models.Order, 1024),
		portfolios:  make(map[uuid.UUID]models.Portfolio, 128),
		settlements: make(map[uuid.UUID]models.Settlement, 1024),
		history:     make(map[uuid.UUID][]uuid.UUID, 128),
		locks:       make(map[uuid.UUID]chan struct{}, 128),
	}
}

func (s *Store) Orders() repository.OrderRepository {
	return &OrderStore{store: s}
}

func (s *Store) Portfolios() repository.PortfolioRepository {
	return &PortfolioStore{store: s}
}

func (s *Store) Settlements() repository.SettlementJournal {
	return &SettlementStore{store: s}
}

func (s *Store) Remediations() repository.RemediationQueue {
	return &RemediationStore{store: s}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type (
	txKey   struct{}
	readKey struct{}
)

type orderWrite struct {
	order       models.Order
	baseVersion int64
	create      bool
}

type portfolioWrite struct {
	portfolio   models.Portfolio
	baseVersion int64
	create      bool
}

type txn struct {
	orders       map[uuid.UUID]orderWrite
	portfolios   map[uuid.UUID]portfolioWrite
	settlements  []models.Settlement
	remediations []models.Remediation
	locked       map[uuid.UUID]struct{}
}

func newTxn() *txn {
	return &txn{
		orders:     make(map[uuid.UUID]orderWrite),
		portfolios: make(map[uuid.UUID]portfolioWrite),
		locked:     make(map[uuid.UUID]struct{}),
	}
}

func txFromContext(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	const op = "memory.Store.WithinTransaction"

	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	if inReadTransaction(ctx) {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrReadOnlyTransaction)
	}

	tx := newTxn()
	defer s.releaseLocks(tx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.commit(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// WithinReadTransaction runs fn with commits held off, so every read inside
// it sees the same committed state. It joins any enclosing transaction.
func (s *Store) WithinReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil || inReadTransaction(ctx) {
		return fn(ctx)
	}

	s.commitMu.RLock()
	defer s.commitMu.RUnlock()

	return fn(context.WithValue(ctx, readKey{}, struct{}{}))
}

func inReadTransaction(ctx context.Context) bool {
	return ctx.Value(readKey{}) != nil
}

// commit verifies every staged write against committed state and then applies
// them all, or none.
func (s *Store) commit(tx *txn) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, write := range tx.orders {
		current, found := s.orders[id]
		if write.create {
			if found {
				return repositoryErrors.ErrOrderAlreadyExists
			}
			continue
		}
		if !found {
			return repositoryErrors.ErrOrderNotFound
		}
		if current.Version != write.baseVersion {
			return repositoryErrors.ErrVersionConflict
		}
	}

	for owner, write := range tx.portfolios {
		current, found := s.portfolios[owner]
		if write.create {
			if found {
				return repositoryErrors.ErrPortfolioAlreadyExists
			}
			continue
		}
		if !found {
			return repositoryErrors.ErrPortfolioNotFound
		}
		if current.Version != write.baseVersion {
			return repositoryErrors.ErrVersionConflict
		}
	}

	for _, settlement := range tx.settlements {
		if _, found := s.settlements[settlement.OrderID]; found {
			return repositoryErrors.ErrSettlementAlreadyApplied
		}
	}

	for id, write := range tx.orders {
		s.orders[id] = write.order
	}
	for owner, write := range tx.portfolios {
		s.portfolios[owner] = write.portfolio.Clone()
	}
	for _, settlement := range tx.settlements {
		s.settlements[settlement.OrderID] = settlement
		s.history[settlement.OwnerID] = append(s.history[settlement.OwnerID], settlement.OrderID)
	}
	s.remediations = append(s.remediations, tx.remediations...)

	return nil
}

func (s *Store) ownerLock(owner uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, found := s.locks[owner]
	if !found {
		lock = make(chan struct{}, 1)
		s.locks[owner] = lock
	}

	return lock
}

func (s *Store) acquire(ctx context.Context, tx *txn, owner uuid.UUID) error {
	if _, held := tx.locked[owner]; held {
		return nil
	}

	select {
	case s.ownerLock(owner) <- struct{}{}:
		tx.locked[owner] = struct{}{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) releaseLocks(tx *txn) {
	for owner := range tx.locked {
		<-s.ownerLock(owner)
	}
	tx.locked = nil
}

func checkContext(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}
