package database

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/thereayou/ligabpi/internal/docstore"
)

// Database реализует docstore.Store поверх gorm и хранит учётные записи.
// События об изменениях уходят в events.
type Database struct {
	db     *gorm.DB
	events docstore.Broker

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewDatabase(db *gorm.DB, events docstore.Broker) *Database {
	if events == nil {
		events = docstore.NewBus()
	}
	return &Database{db: db, events: events, now: time.Now}
}

// Ping проверяет соединение с базой, используется в /healthz.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tick выдаёт строго возрастающие метки времени в пределах процесса.
func (d *Database) tick() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.now().UTC().Truncate(time.Microsecond)
	if !ts.After(d.last) {
		ts = d.last.Add(time.Microsecond)
	}
	d.last = ts
	return ts
}
