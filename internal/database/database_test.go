package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
)

// Mock DialectHandler implementation
type mockDialectHandler struct {
	mu                   sync.Mutex
	createCloudSQLPoolFn func(cfg config.DatabaseConfig) (*sql.DB, error)
	createStandardPoolFn func(cfg config.DatabaseConfig) (*sql.DB, error)

	cloudSQLPoolCalls int
	standardPoolCalls int
	upsertCalls       int
}

func (m *mockDialectHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloudSQLPoolCalls++
	if m.createCloudSQLPoolFn != nil {
		return m.createCloudSQLPoolFn(cfg)
	}
	mockDb, _, _ := sqlmock.New()
	return mockDb, nil
}

func (m *mockDialectHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standardPoolCalls++
	if m.createStandardPoolFn != nil {
		return m.createStandardPoolFn(cfg)
	}
	mockDb, _, _ := sqlmock.New()
	return mockDb, nil
}

func (m *mockDialectHandler) QuoteIdentifier(name string) string { return fmt.Sprintf(`"%s"`, name) }

func (m *mockDialectHandler) Placeholder(position int) string { return fmt.Sprintf("$%d", position) }

func (m *mockDialectHandler) GenerateUpsertSQL(table string, columns, primaryKey []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if err := ValidateUpsertInput(table, columns, primaryKey); err != nil {
		return "", err
	}
	return fmt.Sprintf("UPSERT %s (%s) VALUES (%s)",
		QuoteQualified(m, table), QuoteList(m, "", columns), PlaceholderList(m, len(columns))), nil
}

func TestRegistry(t *testing.T) {
	handler := &mockDialectHandler{}
	RegisterDialectHandler("mockdialect", handler)

	got, err := GetDialectHandler("mockdialect")
	if err != nil {
		t.Fatalf("GetDialectHandler() unexpected error: %v", err)
	}
	if got != handler {
		t.Errorf("GetDialectHandler() returned a different handler")
	}

	if _, err := GetDialectHandler("nosuchdialect"); err == nil {
		t.Errorf("GetDialectHandler() expected error for unknown dialect")
	}

	// overwrite is allowed
	other := &mockDialectHandler{}
	RegisterDialectHandler("mockdialect", other)
	got, _ = GetDialectHandler("mockdialect")
	if got != other {
		t.Errorf("RegisterDialectHandler() did not overwrite existing handler")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("standard pool", func(t *testing.T) {
		handler := &mockDialectHandler{}
		RegisterDialectHandler("mockstd", handler)

		db, err := New(ctx, config.DatabaseConfig{Dialect: "mockstd", Host: "h", Port: 1})
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}
		defer db.Close()
		if handler.standardPoolCalls != 1 || handler.cloudSQLPoolCalls != 0 {
			t.Errorf("pool calls = (std %d, cloudsql %d), want (1, 0)", handler.standardPoolCalls, handler.cloudSQLPoolCalls)
		}
		if db.GetConfig().Dialect != "mockstd" {
			t.Errorf("GetConfig().Dialect = %q", db.GetConfig().Dialect)
		}
	})

	t.Run("cloudsql pool", func(t *testing.T) {
		handler := &mockDialectHandler{}
		RegisterDialectHandler("cloudsqlmock", handler)

		db, err := New(ctx, config.DatabaseConfig{Dialect: "cloudsqlmock", CloudSQLInstanceConnectionName: "p:r:i"})
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}
		defer db.Close()
		if handler.cloudSQLPoolCalls != 1 || handler.standardPoolCalls != 0 {
			t.Errorf("pool calls = (std %d, cloudsql %d), want (0, 1)", handler.standardPoolCalls, handler.cloudSQLPoolCalls)
		}
	})

	t.Run("pool error", func(t *testing.T) {
		RegisterDialectHandler("mockpoolerr", &mockDialectHandler{
			createStandardPoolFn: func(config.DatabaseConfig) (*sql.DB, error) {
				return nil, errors.New("boom")
			},
		})
		_, err := New(ctx, config.DatabaseConfig{Dialect: "mockpoolerr"})
		if err == nil || !strings.Contains(err.Error(), "failed to create database pool") {
			t.Errorf("New() error = %v, want pool creation error", err)
		}
	})

	t.Run("ping error", func(t *testing.T) {
		var mock sqlmock.Sqlmock
		RegisterDialectHandler("mockpingerr", &mockDialectHandler{
			createStandardPoolFn: func(config.DatabaseConfig) (*sql.DB, error) {
				db, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
				mock = m
				m.ExpectPing().WillReturnError(errors.New("unreachable"))
				m.ExpectClose()
				return db, err
			},
		})
		_, err := New(ctx, config.DatabaseConfig{Dialect: "mockpingerr"})
		if err == nil || !strings.Contains(err.Error(), "ping failed") {
			t.Errorf("New() error = %v, want ping error", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("pool was not closed after failed ping: %v", err)
		}
	})

	t.Run("unknown dialect", func(t *testing.T) {
		if _, err := New(ctx, config.DatabaseConfig{Dialect: "nope"}); err == nil {
			t.Errorf("New() expected error for unknown dialect")
		}
	})
}

func TestDBExecAndTx(t *testing.T) {
	pool, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	db := &DB{Pool: pool, Handler: &mockDialectHandler{}}
	defer db.Close()

	mock.ExpectExec("UPSERT").WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 1))
	if _, err := db.ExecContext(context.Background(), "UPSERT x", "1"); err != nil {
		t.Errorf("ExecContext() unexpected error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx() unexpected error: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDBNilPool(t *testing.T) {
	db := &DB{}
	ctx := context.Background()
	if err := db.Ping(ctx); err == nil {
		t.Errorf("Ping() expected error for nil pool")
	}
	if _, err := db.ExecContext(ctx, "SELECT 1"); err == nil {
		t.Errorf("ExecContext() expected error for nil pool")
	}
	if _, err := db.BeginTx(ctx, nil); err == nil {
		t.Errorf("BeginTx() expected error for nil pool")
	}
	if _, err := db.GenerateUpsertSQL("t", []string{"a"}, []string{"a"}); err == nil {
		t.Errorf("GenerateUpsertSQL() expected error for nil handler")
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}

func TestGenerateUpsertSQLDelegates(t *testing.T) {
	handler := &mockDialectHandler{}
	db := &DB{Handler: handler}
	got, err := db.GenerateUpsertSQL("geo.T", []string{"Id", "Name"}, []string{"Id"})
	if err != nil {
		t.Fatalf("GenerateUpsertSQL() unexpected error: %v", err)
	}
	want := `UPSERT "geo"."T" ("Id", "Name") VALUES ($1, $2)`
	if got != want {
		t.Errorf("GenerateUpsertSQL() = %q, want %q", got, want)
	}
	if handler.upsertCalls != 1 {
		t.Errorf("handler called %d times, want 1", handler.upsertCalls)
	}
}

func TestValidateUpsertInput(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []string
		pk      []string
		wantErr bool
	}{
		{"valid", "t", []string{"a", "b"}, []string{"a"}, false},
		{"composite key", "t", []string{"a", "b"}, []string{"a", "b"}, false},
		{"empty table", " ", []string{"a"}, []string{"a"}, true},
		{"no columns", "t", nil, []string{"a"}, true},
		{"empty column", "t", []string{"a", ""}, []string{"a"}, true},
		{"no key", "t", []string{"a"}, nil, true},
		{"key not a column", "t", []string{"a"}, []string{"b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpsertInput(tt.table, tt.columns, tt.pk)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUpsertInput() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNonKeyColumns(t *testing.T) {
	got := NonKeyColumns([]string{"a", "b", "c"}, []string{"b"})
	if strings.Join(got, ",") != "a,c" {
		t.Errorf("NonKeyColumns() = %v, want [a c]", got)
	}
	if got := NonKeyColumns([]string{"a"}, []string{"a"}); len(got) != 0 {
		t.Errorf("NonKeyColumns() = %v, want empty", got)
	}
}

func TestQuoteList(t *testing.T) {
	h := &mockDialectHandler{}
	if got := QuoteList(h, "source.", []string{"a", "b"}); got != `source."a", source."b"` {
		t.Errorf("QuoteList() = %q", got)
	}
	if got := PlaceholderList(h, 3); got != "$1, $2, $3" {
		t.Errorf("PlaceholderList() = %q", got)
	}
}

func TestResolveCloudSQLParams(t *testing.T) {
	t.Run("from config", func(t *testing.T) {
		p, err := ResolveCloudSQLParams(config.DatabaseConfig{
			User: "u", Password: "p", DBName: "d", CloudSQLInstanceConnectionName: "proj:reg:inst", UsePrivateIP: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := CloudSQLParams{User: "u", Password: "p", DBName: "d", Instance: "proj:reg:inst", UsePrivate: true}
		if p != want {
			t.Errorf("ResolveCloudSQLParams() = %+v, want %+v", p, want)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("DB_USER", "envuser")
		t.Setenv("DB_PASS", "envpass")
		t.Setenv("DB_NAME", "envdb")
		t.Setenv("INSTANCE_CONNECTION_NAME", "p:r:i")
		t.Setenv("PRIVATE_IP", "false")
		p, err := ResolveCloudSQLParams(config.DatabaseConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.User != "envuser" || p.DBName != "envdb" || p.Instance != "p:r:i" || p.UsePrivate {
			t.Errorf("ResolveCloudSQLParams() = %+v", p)
		}
	})

	t.Run("missing instance", func(t *testing.T) {
		t.Setenv("INSTANCE_CONNECTION_NAME", "")
		if _, err := ResolveCloudSQLParams(config.DatabaseConfig{User: "u", DBName: "d"}); err == nil {
			t.Errorf("expected error for missing instance")
		}
	})
}
