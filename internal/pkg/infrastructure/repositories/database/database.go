package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//ConnectorFunc is used to inject a database connection method into NewDocumentStore
type ConnectorFunc func() (*gorm.DB, error)

const connectAttempts = 5

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(dsn string, log logging.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		var err error
		for attempt := 1; attempt <= connectAttempts; attempt++ {
			log.Infof("Connecting to database (attempt %d of %d) ...", attempt, connectAttempts)

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Warn),
			})
			if err == nil {
				return db, nil
			}

			log.Errorf("Failed to connect to database: %s", err.Error())
			time.Sleep(3 * time.Second)
		}

		return nil, fmt.Errorf("giving up connecting to database: %w", err)
	}
}

//NewSQLiteConnector opens a connection to a named, in memory, sqlite database.
//Connectors created with the same name share their data.
func NewSQLiteConnector(name string) ConnectorFunc {
	return NewSQLiteFileConnector(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

//NewSQLiteFileConnector opens a connection to a sqlite database using the given dsn
func NewSQLiteFileConnector(dsn string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

//GormStore is a documents.Store emulated on top of a relational database. Each
//document is a row holding its encoded body, and every scalar field is mirrored
//into an index table that equality filters are answered from.
type GormStore struct {
	name string
	impl *gorm.DB
	log  logging.Logger
}

//NewDocumentStore connects to the database and migrates the document tables
func NewDocumentStore(name string, connect ConnectorFunc, log logging.Logger) (*GormStore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&models.Document{}, &models.DocumentField{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate document tables for store %s: %w", name, err)
	}

	log.Infof("Document store %s is ready", name)

	return &GormStore{name: name, impl: impl, log: log}, nil
}

func (s *GormStore) Name() string {
	return s.name
}

func (s *GormStore) Ref(collection, id string) documents.Ref {
	return documents.NewRef(s.name, collection, id)
}

func (s *GormStore) checkRef(ref documents.Ref) error {
	if ref.Store != s.name {
		return documents.ErrForeignRef
	}
	if !ref.Valid() {
		return documents.ErrNotFound
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, ref documents.Ref) (*documents.Document, error) {
	if err := s.checkRef(ref); err != nil {
		return nil, err
	}

	row := models.Document{}
	result := s.impl.WithContext(ctx).
		Where("collection = ? AND document_key = ?", ref.Collection, ref.ID).
		Limit(1).Find(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, documents.ErrNotFound
	}

	return s.toDocument(row)
}

func (s *GormStore) Exists(ctx context.Context, ref documents.Ref) (bool, error) {
	if err := s.checkRef(ref); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	var count int64
	result := s.impl.WithContext(ctx).Model(&models.Document{}).
		Where("collection = ? AND document_key = ?", ref.Collection, ref.ID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to look up %s: %w", ref, result.Error)
	}

	return count > 0, nil
}

func (s *GormStore) Find(ctx context.Context, collection string, filters ...documents.Filter) ([]documents.Document, error) {
	return s.find(ctx, collection, 0, filters)
}

func (s *GormStore) Any(ctx context.Context, collection string, filters ...documents.Filter) (bool, error) {
	docs, err := s.find(ctx, collection, 1, filters)
	return len(docs) > 0, err
}

func (s *GormStore) find(ctx context.Context, collection string, limit int, filters []documents.Filter) ([]documents.Document, error) {
	query := s.impl.WithContext(ctx).Where("collection = ?", collection)

	for _, f := range filters {
		key, ok := documents.IndexKey(f.Value)
		if !ok {
			return nil, fmt.Errorf("field %s cannot be filtered on a value of type %T", f.Field, f.Value)
		}

		matching := s.impl.Model(&models.DocumentField{}).
			Select("document_pk").
			Where("collection = ? AND name = ? AND value = ?", collection, f.Field, key)
		query = query.Where("id IN (?)", matching)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	rows := []models.Document{}
	if result := query.Order("id").Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, result.Error)
	}

	docs := make([]documents.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := s.toDocument(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	return docs, nil
}

func (s *GormStore) Create(ctx context.Context, collection, id string, fields documents.Fields) (documents.Ref, error) {
	normalized, err := documents.Normalize(fields)
	if err != nil {
		return documents.Ref{}, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	ref := s.Ref(collection, id)
	if !ref.Valid() {
		return documents.Ref{}, fmt.Errorf("invalid document path %s", ref.Path())
	}

	body, err := documents.Encode(normalized)
	if err != nil {
		return documents.Ref{}, err
	}

	err = s.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Document{}).Where("collection = ? AND document_key = ?", collection, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return documents.ErrAlreadyExists
		}

		row := models.Document{Collection: collection, DocumentKey: id, Body: string(body)}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		return createFieldIndex(tx, row, normalized)
	})

	if err != nil {
		if errors.Is(err, documents.ErrAlreadyExists) {
			return documents.Ref{}, err
		}
		return documents.Ref{}, fmt.Errorf("failed to create %s: %w", ref, err)
	}

	return ref, nil
}

func (s *GormStore) Update(ctx context.Context, ref documents.Ref, fields documents.Fields) error {
	if err := s.checkRef(ref); err != nil {
		return err
	}

	normalized, err := documents.Normalize(fields)
	if err != nil {
		return err
	}

	err = s.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Document{}
		result := tx.Where("collection = ? AND document_key = ?", ref.Collection, ref.ID).Limit(1).Find(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return documents.ErrNotFound
		}

		current, err := documents.Decode([]byte(row.Body))
		if err != nil {
			return err
		}
		for k, v := range normalized {
			current[k] = v
		}

		body, err := documents.Encode(current)
		if err != nil {
			return err
		}

		row.Body = string(body)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		if err := tx.Where("document_pk = ?", row.ID).Delete(&models.DocumentField{}).Error; err != nil {
			return err
		}

		return createFieldIndex(tx, row, current)
	})

	if err != nil && !errors.Is(err, documents.ErrNotFound) {
		return fmt.Errorf("failed to update %s: %w", ref, err)
	}

	return err
}

func (s *GormStore) Delete(ctx context.Context, ref documents.Ref) error {
	if err := s.checkRef(ref); err != nil {
		return err
	}

	err := s.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Document{}
		result := tx.Where("collection = ? AND document_key = ?", ref.Collection, ref.ID).Limit(1).Find(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return documents.ErrNotFound
		}

		if err := tx.Where("document_pk = ?", row.ID).Delete(&models.DocumentField{}).Error; err != nil {
			return err
		}

		return tx.Delete(&row).Error
	})

	if err != nil && !errors.Is(err, documents.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}

	return err
}

func (s *GormStore) toDocument(row models.Document) (*documents.Document, error) {
	fields, err := documents.Decode([]byte(row.Body))
	if err != nil {
		s.log.Errorf("Document %s/%s in store %s has a corrupt body: %s", row.Collection, row.DocumentKey, s.name, err.Error())
		return nil, err
	}

	return &documents.Document{
		Ref:       s.Ref(row.Collection, row.DocumentKey),
		Fields:    fields,
		CreatedAt: row.CreatedAt,
	}, nil
}

func createFieldIndex(tx *gorm.DB, row models.Document, fields documents.Fields) error {
	index := []models.DocumentField{}

	for name, v := range fields {
		if key, ok := documents.IndexKey(v); ok {
			index = append(index, models.DocumentField{
				DocumentPK: row.ID,
				Collection: row.Collection,
				Name:       name,
				Value:      key,
			})
		}
	}

	if len(index) == 0 {
		return nil
	}

	return tx.Create(&index).Error
}
