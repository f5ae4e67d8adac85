package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"notesync/internal/collection"
	"notesync/internal/db"
	"notesync/internal/note"
)

// Postgres keeps one db.ItemRow per item and replaces a collection's rows
// in one transaction on Save.
type Postgres struct {
	DB *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	gdb, err := db.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Postgres{DB: gdb}, nil
}

func (s *Postgres) Load(ctx context.Context, name string) (collection.Items, error) {
	var rows []db.ItemRow
	if err := s.DB.WithContext(ctx).Where("collection = ?", name).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	out := make(collection.Items, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Data
	}
	return out, nil
}

func (s *Postgres) Save(ctx context.Context, name string, items collection.Items) error {
	rows := make([]db.ItemRow, 0, len(items))
	keys := make([]string, 0, len(items))
	for key, raw := range items {
		rows = append(rows, db.ItemRow{
			Collection: name,
			Key:        key,
			Data:       raw,
			UpdatedAt:  updatedAtOf(raw),
			Tags:       pq.StringArray(tagsOf(raw)),
		})
		keys = append(keys, key)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("collection = ?", name)
		if len(keys) > 0 {
			del = del.Where("key NOT IN ?", keys)
		}
		if err := del.Delete(&db.ItemRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at", "tags"}),
		}).CreateInBatches(&rows, 200).Error
	})
}

func (s *Postgres) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.DB.WithContext(ctx).Model(&db.ItemRow{}).
		Distinct("collection").
		Order("collection").
		Pluck("collection", &names).Error
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	return names, nil
}

func (s *Postgres) LoadSchemas(ctx context.Context) (collection.Items, error) {
	var rows []db.SchemaRow
	if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	out := make(collection.Items, len(rows))
	for _, r := range rows {
		out[r.Collection] = r.Schema
	}
	return out, nil
}

func (s *Postgres) SaveSchemas(ctx context.Context, schemas collection.Items) error {
	rows := make([]db.SchemaRow, 0, len(schemas))
	for name, raw := range schemas {
		rows = append(rows, db.SchemaRow{Collection: name, Schema: raw})
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&db.SchemaRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *Postgres) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// tagsOf indexes the hashtags of an item's content field.
func tagsOf(raw json.RawMessage) []string {
	var v struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{}
	}
	tags := note.ExtractTags(v.Content, note.MaxTagsPerNote)
	if tags == nil {
		return []string{}
	}
	return tags
}
