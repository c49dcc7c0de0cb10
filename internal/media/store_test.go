package media

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	fakeResult int64

	// fakeQueryable records the SQL each store method constructs so the
	// builders can be verified without a live database.
	fakeQueryable struct {
		query string
		args  []any

		execResult sql.Result
		execErr    error
		getErr     error
		selectErr  error
		onGet      func(dest any)
		onSelect   func(dest any)
	}
)

func (result fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (result fakeResult) RowsAffected() (int64, error) { return int64(result), nil }

func (db *fakeQueryable) Exec(query string, args ...any) (sql.Result, error) {
	db.query, db.args = query, args
	if db.execErr != nil {
		return nil, db.execErr
	}

	return db.execResult, nil
}

func (db *fakeQueryable) Get(dest any, query string, args ...any) error {
	db.query, db.args = query, args
	if db.getErr != nil {
		return db.getErr
	}
	if db.onGet != nil {
		db.onGet(dest)
	}

	return nil
}

func (db *fakeQueryable) Select(dest any, query string, args ...any) error {
	db.query, db.args = query, args
	if db.selectErr != nil {
		return db.selectErr
	}
	if db.onSelect != nil {
		db.onSelect(dest)
	}

	return nil
}

func Test_CreateRecord_InsertShape(t *testing.T) {
	t.Parallel()

	db := &fakeQueryable{execResult: fakeResult(1)}
	record := &MediaRecord{
		ID:               uuid.New(),
		StorageKey:       "uploads/1700000000000-Inception.2010.1080p.BluRay.x264.mp4",
		OriginalFilename: "Inception.2010.1080p.BluRay.x264.mp4",
		FileSize:         4096,
		Category:         "movie",
		Parsed:           ParsedCandidate{Title: "Inception", Year: intPointer(2010)},
		Status:           PENDING,
	}

	require.NoError(t, NewStore().CreateRecord(db, record))

	assert.True(t, strings.HasPrefix(db.query, "INSERT INTO media_records"))
	assert.Contains(t, db.query, "$9")
	require.Len(t, db.args, 9)
	assert.Equal(t, record.ID, db.args[0])
	assert.Equal(t, string(PENDING), db.args[8])

	// The parsed candidate is stored as jsonb, and the absent catalog
	// match as SQL NULL.
	parsedColumn, ok := db.args[5].(database.JsonColumn[ParsedCandidate])
	require.True(t, ok)
	parsedValue, err := parsedColumn.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Inception","year":2010}`, string(parsedValue.([]byte)))

	matchColumn, ok := db.args[6].(database.JsonColumn[CatalogMatch])
	require.True(t, ok)
	matchValue, err := matchColumn.Value()
	require.NoError(t, err)
	assert.Nil(t, matchValue)
}

func Test_GetRecord_MapsModelToRecord(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	db := &fakeQueryable{onGet: func(dest any) {
		model, ok := dest.(*recordModel)
		require.True(t, ok)

		model.ID = id
		model.StorageKey = "uploads/1-Inception.mp4"
		model.Status = string(MATCHED)
		model.Confidence = 90
		require.NoError(t, model.Parsed.Scan([]byte(`{"title":"Inception","year":2010}`)))
		require.NoError(t, model.Match.Scan([]byte(`{"external_id":"27205","title":"Inception"}`)))
	}}

	record, err := NewStore().GetRecord(db, id)
	require.NoError(t, err)

	assert.Contains(t, db.query, "FROM media_records")
	assert.Contains(t, db.query, "id = $1")
	assert.Equal(t, []any{id}, db.args)

	assert.Equal(t, id, record.ID)
	assert.Equal(t, MATCHED, record.Status)
	assert.Equal(t, 90, record.Confidence)
	assert.Equal(t, "Inception", record.Parsed.Title)
	require.NotNil(t, record.Parsed.Year)
	assert.Equal(t, 2010, *record.Parsed.Year)
	require.NotNil(t, record.Match)
	assert.Equal(t, "27205", record.Match.ExternalID)
}

func Test_GetRecord_NoRowsIsNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeQueryable{getErr: sql.ErrNoRows}
	_, err := NewStore().GetRecord(db, uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func Test_ListRecordsByStatus_FiltersAndOrders(t *testing.T) {
	t.Parallel()

	db := &fakeQueryable{onSelect: func(dest any) {
		models, ok := dest.(*[]recordModel)
		require.True(t, ok)

		model := recordModel{ID: uuid.New(), Status: string(PENDING)}
		require.NoError(t, model.Parsed.Scan([]byte(`{"title":"Home Movie"}`)))
		*models = append(*models, model)
	}}

	records, err := NewStore().ListRecordsByStatus(db, PENDING, ERROR)
	require.NoError(t, err)

	assert.Contains(t, db.query, "ORDER BY created_at DESC")
	assert.Contains(t, db.query, "status IN ($1,$2)")
	assert.Equal(t, []any{"PENDING", "ERROR"}, db.args)

	require.Len(t, records, 1)
	assert.Equal(t, "Home Movie", records[0].Parsed.Title)
	assert.Equal(t, PENDING, records[0].Status)
}

func Test_ListRecordsByStatus_NoFilterListsAll(t *testing.T) {
	t.Parallel()

	db := &fakeQueryable{}
	_, err := NewStore().ListRecordsByStatus(db)
	require.NoError(t, err)

	assert.NotContains(t, db.query, "WHERE")
	assert.Contains(t, db.query, "ORDER BY created_at DESC")
	assert.Empty(t, db.args)
}

func Test_UpdateRecordResolution_UpdateShape(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	db := &fakeQueryable{execResult: fakeResult(1)}
	match := &CatalogMatch{ExternalID: "27205", Title: "Inception"}

	require.NoError(t, NewStore().UpdateRecordResolution(db, id, match, 90, MATCHED))

	assert.True(t, strings.HasPrefix(db.query, "UPDATE media_records"))
	assert.Contains(t, db.query, "updated_at = current_timestamp")
	assert.Contains(t, db.query, "id = $4")
	require.Len(t, db.args, 4)
	assert.Equal(t, 90, db.args[1])
	assert.Equal(t, string(MATCHED), db.args[2])
	assert.Equal(t, id, db.args[3])
}

func Test_UpdateRecordResolution_MissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeQueryable{execResult: fakeResult(0)}
	err := NewStore().UpdateRecordResolution(db, uuid.New(), nil, 0, ERROR)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func Test_UpdateRecordResolution_ExecErrorPropagates(t *testing.T) {
	t.Parallel()

	execErr := errors.New("connection reset")
	db := &fakeQueryable{execErr: execErr}
	err := NewStore().UpdateRecordResolution(db, uuid.New(), nil, 0, ERROR)
	assert.ErrorIs(t, err, execErr)
}

func intPointer(v int) *int { return &v }
