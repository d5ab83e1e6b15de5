package storage

import (
	"context"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// Item is a row of the postgres storage table. ExpiresAt is unix millis, zero
// never expires.
type Item struct {
	ItemKey   string `gorm:"primaryKey"`
	Value     string
	ExpiresAt int64 `gorm:"index"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli"`
}

func (Item) TableName() string {
	return "wallet_storage_items"
}

// Postgres keeps connector state in a single table keyed by the prefixed
// item key.
type Postgres struct {
	prefix string
	db     *gorm.DB
	ttl    time.Duration
	now    func() time.Time
}

// OpenPostgres connects, pings and migrates the storage table.
func OpenPostgres(cred *config.DBCredential, prefix string, ttl time.Duration) (*Postgres, error) {
	cli, err := gorm.Open(postgres.Open(cred.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get pg conn")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping to pg")
	}
	if err := cli.AutoMigrate(&Item{}); err != nil {
		return nil, errors.Wrap(err, "migrate storage table")
	}
	log.Infof("storage - postgres %s connected, prefix %s", cred.Address, prefix)
	return NewPostgres(cli, prefix, ttl), nil
}

func NewPostgres(db *gorm.DB, prefix string, ttl time.Duration) *Postgres {
	return &Postgres{prefix: prefix, db: db, ttl: ttl, now: time.Now}
}

func (p *Postgres) KeyPrefix() string { return p.prefix }

func (p *Postgres) live(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx).
		Where("expires_at = 0 OR expires_at > ?", p.now().UnixMilli())
}

func (p *Postgres) GetItem(ctx context.Context, key string) (string, bool, error) {
	var item Item
	err := p.live(ctx).Where("item_key = ?", prefixed(p.prefix, key)).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapAndReport(err, "get storage item")
	}
	return item.Value, true, nil
}

func (p *Postgres) SetItem(ctx context.Context, key, value string) error {
	item := &Item{ItemKey: prefixed(p.prefix, key), Value: value}
	if p.ttl > 0 {
		item.ExpiresAt = p.now().Add(p.ttl).UnixMilli()
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(item).Error
	return errors.WrapAndReport(err, "set storage item")
}

func (p *Postgres) RemoveItem(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).Where("item_key = ?", prefixed(p.prefix, key)).Delete(&Item{}).Error
	return errors.WrapAndReport(err, "remove storage item")
}

func (p *Postgres) Clear(ctx context.Context) error {
	err := p.db.WithContext(ctx).Where("item_key LIKE ?", likePrefix(p.prefix)).Delete(&Item{}).Error
	return errors.WrapAndReport(err, "clear storage items")
}

func (p *Postgres) Close() error {
	db, err := p.db.DB()
	if err != nil {
		return errors.Wrap(err, "get pg conn")
	}
	return db.Close()
}

// likePrefix escapes LIKE wildcards in the prefix.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefixed(prefix, ""))
	return escaped + "%"
}
