package media

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/database"
)

var ErrRecordNotFound = errors.New("media record does not exist")

type (
	// recordModel mirrors the media_records table. The parsed candidate and
	// catalog match are stored as jsonb via the JsonColumn container; the
	// struct is internal to the store so the jsonb representation can change
	// without breaking the public MediaRecord API.
	recordModel struct {
		ID               uuid.UUID                             `db:"id"`
		StorageKey       string                                `db:"storage_key"`
		OriginalFilename string                                `db:"original_filename"`
		FileSize         int64                                 `db:"file_size"`
		Category         string                                `db:"category"`
		Parsed           database.JsonColumn[ParsedCandidate]  `db:"parsed"`
		Match            database.JsonColumn[CatalogMatch]     `db:"catalog_match"`
		Confidence       int                                   `db:"confidence"`
		Status           string                                `db:"status"`
		CreatedAt        time.Time                             `db:"created_at"`
		UpdatedAt        time.Time                             `db:"updated_at"`
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// CreateRecord inserts a new media record. The records created/updated
// timestamps are assigned by the database.
func (store *Store) CreateRecord(db database.Queryable, record *MediaRecord) error {
	parsed := record.Parsed
	query, args, err := psql.Insert("media_records").
		Columns("id", "storage_key", "original_filename", "file_size", "category", "parsed", "catalog_match", "confidence", "status").
		Values(
			record.ID, record.StorageKey, record.OriginalFilename, record.FileSize, record.Category,
			database.NewJsonColumn(&parsed), database.NewJsonColumn(record.Match),
			record.Confidence, string(record.Status),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct insert record query: %w", err)
	}

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert media record: %w", err)
	}

	return nil
}

// GetRecord fetches the media record with the ID provided,
// returning ErrRecordNotFound if no such row exists.
func (store *Store) GetRecord(db database.Queryable, id uuid.UUID) (*MediaRecord, error) {
	query, args, err := selectRecordBuilder().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct get record query: %w", err)
	}

	var model recordModel
	if err := db.Get(&model, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}

		return nil, err
	}

	return recordModelToRecord(&model), nil
}

// ListRecordsByStatus returns every media record whose status is one of
// those provided, most recently created first. An empty status list
// returns all records.
func (store *Store) ListRecordsByStatus(db database.Queryable, statuses ...RecordStatus) ([]*MediaRecord, error) {
	builder := selectRecordBuilder().OrderBy("created_at DESC")
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for k, v := range statuses {
			raw[k] = string(v)
		}
		builder = builder.Where(squirrel.Eq{"status": raw})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list records query: %w", err)
	}

	var models []recordModel
	if err := db.Select(&models, query, args...); err != nil {
		return nil, err
	}

	records := make([]*MediaRecord, len(models))
	for k, v := range models {
		records[k] = recordModelToRecord(&v)
	}

	return records, nil
}

// UpdateRecordResolution persists the outcome of a resolution attempt
// (automatic or manual): the catalog match (nil clears any previous
// match), it's confidence score and the resulting lifecycle status.
func (store *Store) UpdateRecordResolution(db database.Queryable, id uuid.UUID, match *CatalogMatch, confidence int, status RecordStatus) error {
	query, args, err := psql.Update("media_records").
		Set("catalog_match", database.NewJsonColumn(match)).
		Set("confidence", confidence).
		Set("status", string(status)).
		Set("updated_at", squirrel.Expr("current_timestamp")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct update record query: %w", err)
	}

	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update media record %s: %w", id, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func selectRecordBuilder() squirrel.SelectBuilder {
	return psql.Select(
		"id", "storage_key", "original_filename", "file_size", "category",
		"parsed", "catalog_match", "confidence", "status", "created_at", "updated_at",
	).From("media_records")
}

func recordModelToRecord(model *recordModel) *MediaRecord {
	record := &MediaRecord{
		ID:               model.ID,
		StorageKey:       model.StorageKey,
		OriginalFilename: model.OriginalFilename,
		FileSize:         model.FileSize,
		Category:         model.Category,
		Match:            model.Match.Get(),
		Confidence:       model.Confidence,
		Status:           RecordStatus(model.Status),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}

	if parsed := model.Parsed.Get(); parsed != nil {
		record.Parsed = *parsed
	}

	return record
}
