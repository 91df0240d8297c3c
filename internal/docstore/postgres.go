package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

// NotifyChannel is the Postgres channel order writes are announced on.
const NotifyChannel = "machikart_orders"

const (
	opUpsert = "upsert"
	opDelete = "delete"
)

// notification carries the status written by the announcing transaction, so
// a listener that reads the row later still reports each status in turn.
type notification struct {
	Op     string             `json:"op"`
	ID     string             `json:"id"`
	Status models.OrderStatus `json:"status,omitempty"`
}

// Postgres stores orders through gorm. Every write announces itself with
// pg_notify inside its transaction; Listen turns those notifications into
// feed changes, so watches see writes made by any service instance.
type Postgres struct {
	db  *gorm.DB
	hub *feed.Hub[models.Order]
	log *zap.Logger
	now func() time.Time
}

// NewPostgres wraps an open gorm connection.
func NewPostgres(db *gorm.DB, log *zap.Logger, opts ...feed.Option[models.Order]) *Postgres {
	return &Postgres{
		db:  db,
		hub: feed.NewHub(OrderID, opts...),
		log: log,
		now: time.Now,
	}
}

func (p *Postgres) Insert(ctx context.Context, order models.Order) (models.Order, error) {
	order = order.Clone()
	order.ID = uuid.NewString()
	order.CreatedAt = Timestamp(p.now())

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return notify(tx, opUpsert, order.ID, order.Status)
	})
	if err != nil {
		return models.Order{}, unavailable("insert", err)
	}
	return order, nil
}

func (p *Postgres) Put(ctx context.Context, id string, order models.Order) (models.Order, error) {
	order = order.Clone()
	order.ID = id
	order.CreatedAt = Timestamp(p.now())

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}
		if err := tx.Clauses(upsert).Create(&order).Error; err != nil {
			return err
		}
		return notify(tx, opUpsert, order.ID, order.Status)
	})
	if err != nil {
		return models.Order{}, unavailable("put", err)
	}
	return order, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).Where("id = ?", id).Update("order_status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return notify(tx, opUpsert, id, status)
	})
	return wrap("update status", err)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Order{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return notify(tx, opDelete, id, "")
	})
	return wrap("delete", err)
}

func (p *Postgres) Query(ctx context.Context, f Filter) ([]models.Order, error) {
	query := p.db.WithContext(ctx).Model(&models.Order{})
	if f.ID != "" {
		query = query.Where("id = ?", f.ID)
	}
	if f.Phone != "" {
		query = query.Where("phone_number = ?", f.Phone)
	}
	if f.CreatedAtOrBefore != nil {
		query = query.Where("created_at <= ?", Timestamp(*f.CreatedAtOrBefore))
	}
	if f.OrderByCreatedDesc {
		query = query.Order("created_at desc")
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, unavailable("query", err)
	}
	for i := range orders {
		orders[i].CreatedAt = Timestamp(orders[i].CreatedAt)
	}
	return orders, nil
}

func (p *Postgres) Watch(ctx context.Context, f Filter) (*feed.Subscription[models.Order], error) {
	load := func(ctx context.Context) ([]models.Order, error) {
		return p.Query(ctx, Filter{ID: f.ID, Phone: f.Phone, CreatedAtOrBefore: f.CreatedAtOrBefore})
	}
	return p.hub.Subscribe(ctx, f.FeedQuery(), load)
}

// DeleteBatch removes ids in a single transaction.
func (p *Postgres) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if err := validateBatch(ids); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id IN ?", ids).Delete(&models.Order{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		for _, id := range ids {
			if err := notify(tx, opDelete, id, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("delete batch", err)
	}
	return int(deleted), nil
}

// Listen consumes order notifications until ctx is done. Watches only receive
// changes while Listen runs.
func (p *Postgres) Listen(ctx context.Context, dsn string) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.log.Warn("order listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return err
	}
	p.log.Info("listening for order changes", zap.String("channel", NotifyChannel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// reconnected; anything sent meanwhile is lost
				if err := p.hub.Resync(ctx); err != nil {
					p.log.Warn("order watch resync failed", zap.Error(err))
				}
				continue
			}
			p.dispatch(ctx, n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					p.log.Warn("order listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (p *Postgres) dispatch(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		p.log.Warn("malformed order notification", zap.String("payload", payload), zap.Error(err))
		return
	}
	if n.Op == opDelete {
		p.hub.Publish(feed.Change[models.Order]{Kind: feed.Removed, ID: n.ID})
		return
	}

	orders, err := p.Query(ctx, Filter{ID: n.ID})
	if err != nil {
		p.log.Warn("failed to load changed order", zap.String("order_id", n.ID), zap.Error(err))
		return
	}
	if len(orders) == 0 {
		p.hub.Publish(feed.Change[models.Order]{Kind: feed.Removed, ID: n.ID})
		return
	}
	order := orders[0]
	if n.Status != "" {
		order.Status = n.Status
	}
	p.hub.Publish(feed.Change[models.Order]{Kind: feed.Modified, ID: n.ID, Doc: order})
}

func notify(tx *gorm.DB, op, id string, status models.OrderStatus) error {
	payload, err := json.Marshal(notification{Op: op, ID: id, Status: status})
	if err != nil {
		return err
	}
	return tx.Exec("SELECT pg_notify(?, ?)", NotifyChannel, string(payload)).Error
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return unavailable(op, err)
	}
}
