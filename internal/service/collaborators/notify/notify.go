package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
)

// Lifecycle event names dispatched to subscribers.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderUsed      = "order.used"
	EventOrderCancelled = "order.cancelled"
	EventOrderRefunding = "order.refunding"
	EventOrderRefunded  = "order.refunded"
)

// Collaborator is the best-effort notification interface the core depends
// on. Delivery is transactional-outbox backed: TriggerEvent only enqueues;
// the outbox worker publishes after the owning transaction commits, retrying
// with backoff, so a broker outage never blocks or rolls back an order.
type Collaborator interface {
	TriggerEvent(ctx context.Context, repo ioutboxrepo.IOutboxRepository, tenantID, eventName string, payload any) error
}

// OutboxCollaborator enqueues events into the outbox table.
type OutboxCollaborator struct{}

func NewOutboxCollaborator() *OutboxCollaborator {
	return &OutboxCollaborator{}
}

type envelope struct {
	Event     string    `json:"event"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TriggerEvent writes the event through the given outbox repository. Passing
// a transaction-bound repository makes the enqueue atomic with the business
// write.
func (c *OutboxCollaborator) TriggerEvent(ctx context.Context, repo ioutboxrepo.IOutboxRepository, tenantID, eventName string, payload any) error {
	body, err := json.Marshal(envelope{
		Event:     eventName,
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	maxRetries := viper.GetInt("rabbitmq.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 10
	}

	now := time.Now()

	return repo.Insert(ctx, outboxMessage(eventName, tenantID, body, maxRetries, now))
}
