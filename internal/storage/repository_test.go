package storage_test

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/skycast/internal/forecast"
	"github.com/neexbeast/skycast/internal/storage"
	"github.com/neexbeast/skycast/migrations"
)

// ---- mock TxBeginner ----

type mockDB struct {
	beginTxFn func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	opts      []pgx.TxOptions
}

func (m *mockDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	m.opts = append(m.opts, opts)
	return m.beginTxFn(ctx, opts)
}

// ---- mock pgx.Row ----

type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f *fakeRow) Scan(dest ...any) error { return f.scanFn(dest...) }

// ---- mock pgx.Rows ----

type fakeRows struct {
	rows    [][]any
	idx     int
	rowErr  error
	scanErr error
	closed  bool
}

func (f *fakeRows) Next() bool                                   { f.idx++; return f.idx <= len(f.rows) }
func (f *fakeRows) Err() error                                   { return f.rowErr }
func (f *fakeRows) Close()                                       { f.closed = true }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		switch v := d.(type) {
		case *int64:
			*v = row[i].(int64)
		case *int:
			*v = row[i].(int)
		case *float64:
			*v = row[i].(float64)
		case *string:
			*v = row[i].(string)
		case *time.Time:
			*v = row[i].(time.Time)
		}
	}
	return nil
}

// ---- mock MigrationPool ----

type mockMigrationPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockMigrationPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.beginFn(ctx)
}

// mockTx is a minimal pgx.Tx implementation.
type mockTx struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	commitFn   func(ctx context.Context) error

	committed  bool
	rolledBack bool
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.queryRowFn(ctx, sql, args...)
}
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.queryFn(ctx, sql, args...)
}
func (t *mockTx) Commit(ctx context.Context) error {
	t.committed = true
	if t.commitFn != nil {
		return t.commitFn(ctx)
	}
	return nil
}
func (t *mockTx) Rollback(_ context.Context) error {
	t.rolledBack = true
	return nil
}

// pgx.Tx has many more methods — stub them all out.
func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (t *mockTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

// ---- helpers ----

func dbWithTx(tx *mockTx) *mockDB {
	return &mockDB{beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) { return tx, nil }}
}

func sampleRecord() *forecast.Record {
	return &forecast.Record{
		Temperature: 72.5,
		HighTemp:    75.0,
		LowTemp:     68.0,
		FeltTemp:    70.0,
		Humidity:    40,
		Description: "clear sky",
		WindSpeed:   5.2,
		City:        "Chicago",
		CountryCode: "US",
		WeatherCode: "01d",
		Date:        "2024-06-01 12:00:00",
	}
}

func recordRow(id int64, city, date string, created time.Time) []any {
	return []any{id, 72.5, 75.0, 68.0, 70.0, 40, "clear sky", 5.2, city, "US", "01d", date, created}
}

// ---- Save tests ----

func TestSave_Inserted(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	var capturedSQL string
	var capturedArgs []any
	tx := &mockTx{
		queryRowFn: func(_ context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			capturedArgs = args
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*int64) = 42
				*dest[1].(*time.Time) = now
				return nil
			}}
		},
	}
	db := dbWithTx(tx)

	rec := sampleRecord()
	inserted, err := storage.NewRepositoryWithDB(db).Save(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	assert.Contains(t, capturedSQL, "ON CONFLICT (city, forecast_date) DO NOTHING")
	require.Len(t, capturedArgs, 11)
	assert.Equal(t, 72.5, capturedArgs[0])
	assert.Equal(t, 40, capturedArgs[4])
	assert.Equal(t, "Chicago", capturedArgs[7])
	assert.Equal(t, "US", capturedArgs[8])
	assert.Equal(t, "01d", capturedArgs[9])
	assert.Equal(t, "2024-06-01 12:00:00", capturedArgs[10])
	assert.Equal(t, pgx.TxOptions{}, db.opts[0])
}

func TestSave_Duplicate(t *testing.T) {
	tx := &mockTx{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(_ ...any) error { return pgx.ErrNoRows }}
		},
	}

	rec := sampleRecord()
	inserted, err := storage.NewRepositoryWithDB(dbWithTx(tx)).Save(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, rec.ID)
	assert.True(t, tx.committed)
}

func TestSave_BeginError(t *testing.T) {
	db := &mockDB{beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
		return nil, fmt.Errorf("pool exhausted")
	}}

	_, err := storage.NewRepositoryWithDB(db).Save(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning transaction")
}

func TestSave_InsertErrorRollsBack(t *testing.T) {
	tx := &mockTx{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(_ ...any) error { return fmt.Errorf("connection reset") }}
		},
	}

	_, err := storage.NewRepositoryWithDB(dbWithTx(tx)).Save(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting forecast")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestSave_CommitErrorRollsBack(t *testing.T) {
	tx := &mockTx{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &fakeRow{scanFn: func(dest ...any) error {
				*dest[0].(*int64) = 1
				return nil
			}}
		},
		commitFn: func(_ context.Context) error { return fmt.Errorf("commit failed") },
	}

	inserted, err := storage.NewRepositoryWithDB(dbWithTx(tx)).Save(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.False(t, inserted)
	assert.Contains(t, err.Error(), "committing")
	assert.True(t, tx.rolledBack)
}

// ---- FindByCity tests ----

func TestFindByCity_Found(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	var capturedArgs []any
	rows := &fakeRows{rows: [][]any{
		recordRow(1, "Chicago", "2024-06-01 12:00:00", now),
		recordRow(2, "Chicago", "2024-06-01 15:00:00", now),
	}}
	tx := &mockTx{
		queryFn: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
			capturedArgs = args
			return rows, nil
		},
	}
	db := dbWithTx(tx)

	results, err := storage.NewRepositoryWithDB(db).FindByCity(context.Background(), "Chicago")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []any{"Chicago"}, capturedArgs)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, "Chicago", results[0].City)
	assert.Equal(t, 72.5, results[0].Temperature)
	assert.Equal(t, 40, results[0].Humidity)
	assert.Equal(t, "2024-06-01 15:00:00", results[1].Date)
	assert.Equal(t, now, results[1].CreatedAt)

	assert.Equal(t, pgx.ReadOnly, db.opts[0].AccessMode)
	assert.True(t, rows.closed)
	assert.True(t, tx.rolledBack, "read transaction is released")
}

func TestFindByCity_Empty(t *testing.T) {
	tx := &mockTx{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return &fakeRows{}, nil },
	}

	results, err := storage.NewRepositoryWithDB(dbWithTx(tx)).FindByCity(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFindByCity_BeginError(t *testing.T) {
	db := &mockDB{beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
		return nil, fmt.Errorf("db down")
	}}

	_, err := storage.NewRepositoryWithDB(db).FindByCity(context.Background(), "Chicago")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning read transaction")
}

func TestFindByCity_QueryError(t *testing.T) {
	tx := &mockTx{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return nil, fmt.Errorf("query failed")
		},
	}

	_, err := storage.NewRepositoryWithDB(dbWithTx(tx)).FindByCity(context.Background(), "Chicago")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying forecasts")
	assert.True(t, tx.rolledBack)
}

func TestFindByCity_ScanError(t *testing.T) {
	rows := &fakeRows{
		rows:    [][]any{recordRow(1, "Chicago", "d", time.Now())},
		scanErr: fmt.Errorf("scan failed"),
	}
	tx := &mockTx{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil },
	}

	_, err := storage.NewRepositoryWithDB(dbWithTx(tx)).FindByCity(context.Background(), "Chicago")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning")
}

func TestFindByCity_RowsErr(t *testing.T) {
	rows := &fakeRows{rowErr: fmt.Errorf("rows iteration error")}
	tx := &mockTx{
		queryFn: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return rows, nil },
	}

	_, err := storage.NewRepositoryWithDB(dbWithTx(tx)).FindByCity(context.Background(), "Chicago")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterating")
}

// ---- NewRepository ----

func TestNewRepository_NotNil(t *testing.T) {
	repo := storage.NewRepository(nil)
	assert.NotNil(t, repo)
}

// ---- RunMigrations tests ----

func okTx(order *[]string) *mockTx {
	return &mockTx{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			if order != nil {
				*order = append(*order, sql)
			}
			return pgconn.CommandTag{}, nil
		},
	}
}

func TestRunMigrations_EmptyFS(t *testing.T) {
	applied, err := storage.RunMigrations(context.Background(), nil, fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunMigrations_SkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"README.md":  {Data: []byte("docs")},
		"embed.go":   {Data: []byte("package migrations")},
		"sub/02.sql": {Data: []byte("SELECT 2;")},
	}
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) { return okTx(nil), nil }}

	applied, err := storage.RunMigrations(context.Background(), pool, fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql"}, applied)
}

func TestRunMigrations_BeginError(t *testing.T) {
	fsys := fstest.MapFS{"001_test.sql": {Data: []byte("SELECT 1;")}}
	pool := &mockMigrationPool{
		beginFn: func(_ context.Context) (pgx.Tx, error) { return nil, fmt.Errorf("cannot begin") },
	}

	_, err := storage.RunMigrations(context.Background(), pool, fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing migration")
}

func TestRunMigrations_ExecErrorRollsBack(t *testing.T) {
	fsys := fstest.MapFS{"001_test.sql": {Data: []byte("INVALID SQL;")}}
	tx := &mockTx{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, fmt.Errorf("syntax error")
		},
	}
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	_, err := storage.RunMigrations(context.Background(), pool, fsys)
	require.Error(t, err)
	assert.True(t, tx.rolledBack)
}

func TestRunMigrations_CommitError(t *testing.T) {
	fsys := fstest.MapFS{"001_test.sql": {Data: []byte("SELECT 1;")}}
	tx := okTx(nil)
	tx.commitFn = func(_ context.Context) error { return fmt.Errorf("commit failed") }
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) { return tx, nil }}

	_, err := storage.RunMigrations(context.Background(), pool, fsys)
	require.Error(t, err)
}

func TestRunMigrations_SortsFilesLexicographically(t *testing.T) {
	fsys := fstest.MapFS{
		"003_c.sql": {Data: []byte("SELECT 3;")},
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"002_b.sql": {Data: []byte("SELECT 2;")},
	}
	var order []string
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) { return okTx(&order), nil }}

	_, err := storage.RunMigrations(context.Background(), pool, fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2;", "SELECT 3;"}, order)
}

func TestRunMigrations_EmbeddedSchema(t *testing.T) {
	var order []string
	pool := &mockMigrationPool{beginFn: func(_ context.Context) (pgx.Tx, error) { return okTx(&order), nil }}

	applied, err := storage.RunMigrations(context.Background(), pool, migrations.FS)
	require.NoError(t, err)
	require.Contains(t, applied, "001_create_forecasts.sql")
	assert.Contains(t, order[0], "UNIQUE (city, forecast_date)")
}

// ---- Connect tests ----

func TestConnect_BadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := storage.Connect(ctx, "postgres://invalid-host-xyz:5432/db?sslmode=disable")
	require.Error(t, err)
}
