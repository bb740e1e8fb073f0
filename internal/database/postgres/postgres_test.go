package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
)

func TestPostgresQuoteIdentifier(t *testing.T) {
	handler := postgresHandler{}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple name", "mytable", `"mytable"`},
		{"Mixed case", "GeonameId", `"GeonameId"`},
		{"Name with spaces", "my table", `"my table"`},
		{"Name with quotes", `my"table`, `"my""table"`},
		{"Keyword", "user", `"user"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handler.QuoteIdentifier(tt.in); got != tt.want {
				t.Errorf("QuoteIdentifier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresPlaceholder(t *testing.T) {
	handler := postgresHandler{}
	if got := handler.Placeholder(1); got != "$1" {
		t.Errorf("Placeholder(1) = %q", got)
	}
	if got := handler.Placeholder(17); got != "$17" {
		t.Errorf("Placeholder(17) = %q", got)
	}
}

func TestPostgresGenerateUpsertSQL(t *testing.T) {
	handler := postgresHandler{}

	tests := []struct {
		name    string
		table   string
		columns []string
		pk      []string
		want    string
		wantErr bool
	}{
		{
			name:    "update non key columns",
			table:   "ORG_GEONAMES_GEONAMES",
			columns: []string{"GeonameId", "Name", "Latitude"},
			pk:      []string{"GeonameId"},
			want: `INSERT INTO "ORG_GEONAMES_GEONAMES" ("GeonameId", "Name", "Latitude") VALUES ($1, $2, $3) ` +
				`ON CONFLICT ("GeonameId") DO UPDATE SET "Name" = EXCLUDED."Name", "Latitude" = EXCLUDED."Latitude"`,
		},
		{
			name:    "schema qualified",
			table:   "geo.names",
			columns: []string{"Id", "Name"},
			pk:      []string{"Id"},
			want:    `INSERT INTO "geo"."names" ("Id", "Name") VALUES ($1, $2) ON CONFLICT ("Id") DO UPDATE SET "Name" = EXCLUDED."Name"`,
		},
		{
			name:    "all key columns",
			table:   "t",
			columns: []string{"a", "b"},
			pk:      []string{"a", "b"},
			want:    `INSERT INTO "t" ("a", "b") VALUES ($1, $2) ON CONFLICT ("a", "b") DO NOTHING`,
		},
		{name: "empty table", table: "", columns: []string{"a"}, pk: []string{"a"}, wantErr: true},
		{name: "key not in columns", table: "t", columns: []string{"a"}, pk: []string{"b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := handler.GenerateUpsertSQL(tt.table, tt.columns, tt.pk)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GenerateUpsertSQL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GenerateUpsertSQL() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPostgresUpsertExecutes(t *testing.T) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	handler := postgresHandler{}
	db := &database.DB{Pool: mockDb, Handler: handler, Config: config.DatabaseConfig{Dialect: "postgres"}}
	defer db.Close()

	query, err := db.GenerateUpsertSQL("t", []string{"Id", "Name"}, []string{"Id"})
	if err != nil {
		t.Fatalf("GenerateUpsertSQL() error: %v", err)
	}
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("1", `"Springfield,IL"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := db.ExecContext(context.Background(), query, "1", `"Springfield,IL"`); err != nil {
		t.Errorf("ExecContext() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRegistered(t *testing.T) {
	for _, dialect := range []string{"postgres", "cloudsqlpostgres"} {
		h, err := database.GetDialectHandler(dialect)
		if err != nil {
			t.Fatalf("GetDialectHandler(%q) error: %v", dialect, err)
		}
		if _, ok := h.(postgresHandler); !ok {
			t.Errorf("GetDialectHandler(%q) = %T, want postgresHandler", dialect, h)
		}
	}
}

func TestPostgresCloudSQLPoolRequiresInstance(t *testing.T) {
	t.Setenv("INSTANCE_CONNECTION_NAME", "")
	handler := postgresHandler{}
	if _, err := handler.CreateCloudSQLPool(config.DatabaseConfig{User: "u", DBName: "d"}); err == nil {
		t.Errorf("CreateCloudSQLPool() expected error without instance connection name")
	}
}
