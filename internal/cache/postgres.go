package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"feedsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CachedCollection is the row backing one named collection in Postgres. The
// posts are stored as a single JSONB payload; the store never queries inside
// them.
type CachedCollection struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	Posts     []byte    `gorm:"type:jsonb;not null" json:"posts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for CachedCollection.
func (CachedCollection) TableName() string {
	return "feed_collections"
}

// PostgresStore persists collections in Postgres for deployments that have no
// Redis available.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the backing table.
func (s *PostgresStore) Migrate() error {
	return s.db.AutoMigrate(&CachedCollection{})
}

func (s *PostgresStore) Get(ctx context.Context, name string) ([]models.Post, error) {
	var row CachedCollection
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	var posts []models.Post
	if err := json.Unmarshal(row.Posts, &posts); err != nil {
		return nil, models.NewStorageError(err)
	}
	return posts, nil
}

func (s *PostgresStore) Set(ctx context.Context, name string, posts []models.Post) error {
	payload, err := json.Marshal(posts)
	if err != nil {
		return models.NewStorageError(err)
	}
	row := CachedCollection{Name: name, Posts: payload, UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"posts", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}
