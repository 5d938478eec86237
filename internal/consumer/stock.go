package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/erp-event-pipeline/internal/domain/inventory"
	"github.com/example/erp-event-pipeline/internal/domain/sale"
	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

const defaultVersionRetries = 3

// StockUpdate decrements the (item, shop) level for every sold line and
// records the movement. A line whose movement already exists is skipped.
type StockUpdate struct {
	exec    Executor
	stock   store.StockStore
	logger  *logrus.Logger
	retries int
}

func NewStockUpdate(exec Executor, stock store.StockStore, logger *logrus.Logger) *StockUpdate {
	return &StockUpdate{
		exec:    exec,
		stock:   stock,
		logger:  logger,
		retries: defaultVersionRetries,
	}
}

func (c *StockUpdate) Handle(ctx context.Context, e event.Event) error {
	p, err := saleCompleted(e)
	if err != nil {
		return err
	}

	lines := mergeLines(p.Items)
	var applied int
	for attempt := 1; ; attempt++ {
		applied = 0
		err = c.exec.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
			for _, item := range lines {
				ok, err := c.applyLine(ctx, p, item)
				if err != nil {
					return err
				}
				if ok {
					applied++
				}
			}
			return nil
		})
		if err == nil || !errors.Is(err, inventory.ErrVersionConflict) || attempt >= c.retries {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"component": NameStockUpdate,
			"sale_id":   p.SaleID,
			"attempt":   attempt,
		}).Debug("stock level changed concurrently, retrying")
	}
	if err != nil {
		return fmt.Errorf("update stock for sale %s: %w", p.SaleID, err)
	}

	c.logger.WithFields(logrus.Fields{
		"component": NameStockUpdate,
		"tenant_id": p.TenantID,
		"sale_id":   p.SaleID,
		"items":     len(lines),
		"applied":   applied,
	}).Info("stock updated")
	return nil
}

// mergeLines sums quantities of repeated items, keeping first-seen order.
// The movement key is (sale, item), so one item gets one movement.
func mergeLines(items []sale.LineItem) []sale.LineItem {
	index := make(map[string]int, len(items))
	var out []sale.LineItem
	for _, item := range items {
		if i, ok := index[item.ItemID]; ok {
			out[i].Quantity = out[i].Quantity.Add(item.Quantity)
			continue
		}
		index[item.ItemID] = len(out)
		out = append(out, item)
	}
	return out
}

// applyLine reports whether the line was applied now (false when it was
// already applied by an earlier delivery).
func (c *StockUpdate) applyLine(ctx context.Context, p sale.SaleCompleted, item sale.LineItem) (bool, error) {
	exists, err := c.stock.MovementExists(ctx, p.TenantID, inventory.MovementReferenceSale, p.SaleID, item.ItemID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	level, err := c.stock.GetLevel(ctx, p.TenantID, item.ItemID, p.ShopID)
	if err != nil {
		return false, err
	}
	version := level.Version
	movement, err := level.Decrement(item.Quantity, inventory.MovementReferenceSale, p.SaleID, p.SaleDate)
	if err != nil {
		return false, fmt.Errorf("item %s: %w", item.ItemID, err)
	}
	if err := c.stock.UpdateLevel(ctx, level, version); err != nil {
		return false, err
	}
	if err := c.stock.AppendMovement(ctx, movement); err != nil {
		return false, err
	}
	return true, nil
}

// StockAlert raises a low-stock alert for each sold (item, shop) that is at
// or below its minimum, unless an unacknowledged one is already open.
type StockAlert struct {
	exec   Executor
	stock  store.StockStore
	alerts store.AlertStore
	logger *logrus.Logger
}

func NewStockAlert(exec Executor, stock store.StockStore, alerts store.AlertStore, logger *logrus.Logger) *StockAlert {
	return &StockAlert{exec: exec, stock: stock, alerts: alerts, logger: logger}
}

func (c *StockAlert) Handle(ctx context.Context, e event.Event) error {
	p, err := saleCompleted(e)
	if err != nil {
		return err
	}

	return c.exec.Execute(ctx, func(ctx context.Context, w *uow.Work) error {
		seen := make(map[string]bool, len(p.Items))
		for _, item := range p.Items {
			if seen[item.ItemID] {
				continue
			}
			seen[item.ItemID] = true
			if err := c.check(ctx, p, item.ItemID); err != nil {
				return fmt.Errorf("check stock alert for item %s: %w", item.ItemID, err)
			}
		}
		return nil
	})
}

func (c *StockAlert) check(ctx context.Context, p sale.SaleCompleted, itemID string) error {
	level, err := c.stock.GetLevel(ctx, p.TenantID, itemID, p.ShopID)
	if err != nil {
		return err
	}
	if !level.IsLow() {
		return nil
	}

	_, err = c.alerts.FindOpenAlert(ctx, p.TenantID, itemID, p.ShopID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, inventory.ErrAlertNotFound) {
		return err
	}

	alert := inventory.NewAlert(*level)
	if err := c.alerts.CreateAlert(ctx, alert); err != nil {
		if errors.Is(err, inventory.ErrAlertExists) {
			return nil
		}
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"component":     NameStockAlert,
		"tenant_id":     p.TenantID,
		"item_id":       itemID,
		"shop_id":       p.ShopID,
		"current_stock": level.Quantity.String(),
		"minimum_stock": level.MinimumStock.String(),
	}).Warn("low stock alert raised")
	return nil
}
