package consumer

import (
	"time"

	"github.com/example/erp-event-pipeline/internal/dispatch"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/posting"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators the sale completion consumers need.
// Locker and Publisher are optional; see Register for what a Publisher changes.
type Dependencies struct {
	Executor  Executor
	Stock     store.StockStore
	Alerts    store.AlertStore
	Customers store.CustomerStore
	Idem      store.IdempotencyStore
	Ledger    store.LedgerStore
	Payments  store.PaymentStore
	Documents store.DocumentStore
	Engine    *posting.Engine
	Locker    PostingLocker
	Codec     *event.Codec
	Publisher Publisher
	Logger    *logrus.Logger

	// Timeout overrides the dispatcher default for every subscription when set.
	Timeout time.Duration
}

type subscription struct {
	name     string
	consumer dispatch.Consumer
	policy   dispatch.Policy
	opts     []dispatch.SubscriptionOption
}

// Register subscribes the consumers to SaleCompleted in their fixed order:
// stock, alert and customer stats are blocking; posting and documents are
// best effort. A redelivered stock update re-runs the alert check.
//
// With a Publisher the process is a write side that hands events to other
// processes: only the relay is registered, so the consumers run once, in the
// process reading the topic.
func Register(reg *dispatch.Registry, deps Dependencies) error {
	var opts []dispatch.SubscriptionOption
	if deps.Timeout > 0 {
		opts = append(opts, dispatch.WithTimeout(deps.Timeout))
	}

	var subs []subscription
	if deps.Publisher != nil {
		subs = []subscription{
			{name: NameEventRelay, consumer: NewEventRelay(deps.Codec, deps.Publisher, deps.Logger), policy: dispatch.BestEffort},
		}
	} else {
		subs = []subscription{
			{
				name:     NameStockUpdate,
				consumer: NewStockUpdate(deps.Executor, deps.Stock, deps.Logger),
				policy:   dispatch.Blocking,
				opts:     []dispatch.SubscriptionOption{dispatch.WithFollowUps(NameStockAlert)},
			},
			{name: NameStockAlert, consumer: NewStockAlert(deps.Executor, deps.Stock, deps.Alerts, deps.Logger), policy: dispatch.Blocking},
			{name: NameCustomerStats, consumer: NewCustomerStats(deps.Executor, deps.Customers, deps.Idem, deps.Logger), policy: dispatch.Blocking},
			{name: NameCashbookPosting, consumer: NewCashbookPosting(deps.Executor, deps.Engine, deps.Ledger, deps.Payments, deps.Locker, deps.Logger), policy: dispatch.BestEffort},
			{name: NameDocumentIssuance, consumer: NewDocumentIssuance(deps.Executor, deps.Documents, deps.Logger), policy: dispatch.BestEffort},
		}
	}

	for _, s := range subs {
		subOpts := append(append([]dispatch.SubscriptionOption(nil), opts...), s.opts...)
		if err := reg.Register(sale.EventSaleCompleted, s.name, s.consumer, s.policy, subOpts...); err != nil {
			return err
		}
	}
	return nil
}
