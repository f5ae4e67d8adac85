package db

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ItemRow is one item as stored by the postgres backend. Data holds the
// item exactly as it was accepted; the other columns are derived from it.
type ItemRow struct {
	Collection string          `gorm:"primaryKey;type:text"`
	Key        string          `gorm:"primaryKey;type:text"`
	Data       json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	UpdatedAt  string          `gorm:"type:text;not null;default:'';autoUpdateTime:false"`
	Tags       pq.StringArray  `gorm:"type:text[];not null;default:'{}'"`
}

func (ItemRow) TableName() string { return "items" }

// SchemaRow is the JSON Schema registered for one collection.
type SchemaRow struct {
	Collection string          `gorm:"primaryKey;type:text"`
	Schema     json.RawMessage `gorm:"type:jsonb;not null"`
}

func (SchemaRow) TableName() string { return "schemas" }

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&ItemRow{}, &SchemaRow{}); err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_items_tags on items using gin (tags);`,
		`create index if not exists idx_items_updated on items(collection, updated_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	return nil
}
