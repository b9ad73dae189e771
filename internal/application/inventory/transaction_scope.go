package inventory

import (
	"context"

	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/domain/shared"
)

// TransactionScope is the unit-of-work boundary for inventory writes.
// Everything executed inside one scope commits or rolls back atomically,
// including outbox appends, so an event can never outlive the business
// change that produced it or vice versa.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides repositories bound to the current
// transaction. All of them share the same underlying connection.
type TransactionalRepositories interface {
	// StockRepo returns the stock repository scoped to the transaction
	StockRepo() inventory.StockRepository
	// OffsetRepo returns the offset repository scoped to the transaction
	OffsetRepo() inventory.InventoryOffsetRepository
	// OutboxRepo returns the outbox repository scoped to the transaction
	OutboxRepo() shared.OutboxRepository
}

// NoOpTransactionScope executes without a real transaction. Useful for
// tests and for stores that do not need transactional guarantees.
type NoOpTransactionScope struct {
	stockRepo  inventory.StockRepository
	offsetRepo inventory.InventoryOffsetRepository
	outboxRepo shared.OutboxRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories
func NewNoOpTransactionScope(
	stockRepo inventory.StockRepository,
	offsetRepo inventory.InventoryOffsetRepository,
	outboxRepo shared.OutboxRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		stockRepo:  stockRepo,
		offsetRepo: offsetRepo,
		outboxRepo: outboxRepo,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// StockRepo returns the stock repository
func (s *NoOpTransactionScope) StockRepo() inventory.StockRepository {
	return s.stockRepo
}

// OffsetRepo returns the offset repository
func (s *NoOpTransactionScope) OffsetRepo() inventory.InventoryOffsetRepository {
	return s.offsetRepo
}

// OutboxRepo returns the outbox repository
func (s *NoOpTransactionScope) OutboxRepo() shared.OutboxRepository {
	return s.outboxRepo
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
