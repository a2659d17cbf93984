package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrDuplicateCode             = errors.New("order code already exists")
	ErrDuplicatePaymentReference = errors.New("payment reference already recorded on another order")
)

const (
	orderCodeIndex             = "idx_orders_code"
	orderPaymentReferenceIndex = "idx_orders_payment_reference"
)

// TxManager runs fn inside a database transaction. Repositories called with
// the ctx handed to fn join that transaction; a nested WithTx becomes a
// savepoint, so a failed insert can be retried without aborting the outer
// transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

type txManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) TxManager {
	return &txManager{db: db}
}

func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, m.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or db when there is none.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// IsConstraintViolation reports whether Postgres rejected the write on an
// integrity constraint (class 23). Retrying such a write cannot succeed.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}

// Store bundles the repositories that share one database, plus the
// transaction runner that lets callers write to several of them atomically.
type Store struct {
	Tx          TxManager
	Events      EventRepository
	TicketTypes TicketTypeRepository
	Orders      OrderRepository
	Referrers   ReferrerRepository
}

func NewStore(db *gorm.DB) Store {
	return Store{
		Tx:          NewTxManager(db),
		Events:      NewEventRepository(db),
		TicketTypes: NewTicketTypeRepository(db),
		Orders:      NewOrderRepository(db),
		Referrers:   NewReferrerRepository(db),
	}
}
