package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iauditrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderitemrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iskurepo"
	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	auditrepo "github.com/garrymei/minimodules-order/internal/dal/repositories/audit/postgres"
	orderrepo "github.com/garrymei/minimodules-order/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/garrymei/minimodules-order/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/garrymei/minimodules-order/internal/dal/repositories/outbox/postgres"
	skurepo "github.com/garrymei/minimodules-order/internal/dal/repositories/sku/postgres"
)

// unitOfWork binds the repositories to one connection source: the pool before
// Begin, a single transaction after. Row locks taken through the repositories
// stay valid until Commit or Rollback.
type unitOfWork struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
	skuRepo       iskurepo.ISKURepository
	auditRepo     iauditrepo.IAuditRepository
	outboxRepo    ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(client *postgres.Client) *unitOfWork {
	u := &unitOfWork{pool: client.Pool()}
	u.bind(client.Pool())

	return u
}

func (u *unitOfWork) bind(conn postgres.Querier) {
	u.orderRepo = orderrepo.NewPostgresOrderRepository(conn)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(conn)
	u.skuRepo = skurepo.NewPostgresSKURepository(conn)
	u.auditRepo = auditrepo.NewPostgresAuditRepository(conn)
	u.outboxRepo = outboxrepo.NewPostgresOutboxRepository(conn)
}

func (u *unitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *unitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

func (u *unitOfWork) SKURepository() iskurepo.ISKURepository {
	return u.skuRepo
}

func (u *unitOfWork) AuditRepository() iauditrepo.IAuditRepository {
	return u.auditRepo
}

func (u *unitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	u.tx = tx
	u.bind(tx)

	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Commit(ctx)
	u.tx = nil
	u.bind(u.pool)

	return err
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(ctx)
	u.tx = nil
	u.bind(u.pool)

	return err
}
