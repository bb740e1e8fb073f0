package loader_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	_ "github.com/GoogleCloudPlatform/geonames-loader/internal/database/sqlite"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/loader"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/metrics"
)

const (
	sanDiego  = "5391811\tSan Diego\tSan Diego\tSD,San Diego\t32.71571\t-117.16472\tP\tPPLA2\tUS\t\tCA\t073\t\t\t1394928\t20\t16\tAmerica/Los_Angeles\t2022-02-11"
	springfld = "4250542\tSpringfield,IL\tSpringfield\t\t39.80172\t-89.64371\tP\tPPLA\tUS\t\tIL\t167\t\t\t114394\t180\t182\tAmerica/Chicago\t2021-05-12"
)

type captureReporter struct {
	runs []metrics.Run
}

func (c *captureReporter) Report(_ context.Context, r metrics.Run) error {
	c.runs = append(c.runs, r)
	return nil
}

func (c *captureReporter) Close() error { return nil }

func setupDB(t *testing.T, tables map[string]*geonames.Schema) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, config.DatabaseConfig{
		Dialect: "sqlite",
		DBName:  filepath.Join(t.TempDir(), "geo.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for table, s := range tables {
		cols := make([]string, 0, len(s.RetainedColumns()))
		for _, c := range s.RetainedColumns() {
			cols = append(cols, db.Handler.QuoteIdentifier(c)+" TEXT")
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s, PRIMARY KEY (%s))",
			db.Handler.QuoteIdentifier(table), strings.Join(cols, ", "), db.Handler.QuoteIdentifier(s.PrimaryKey[0]))
		_, err := db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}
	return db
}

func importConfig() config.ImportConfig {
	cfg := config.Default().Import
	cfg.Retry.InitialBackoff = 0
	return cfg
}

func names(t *testing.T, db *database.DB) map[string]string {
	t.Helper()
	rows, err := db.Pool.Query(`SELECT "GeonameId", "Name" FROM "ORG_GEONAMES_GEONAMES"`)
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var id, name string
		require.NoError(t, rows.Scan(&id, &name))
		out[id] = name
	}
	require.NoError(t, rows.Err())
	return out
}

func TestLoadGeonamesEndToEnd(t *testing.T) {
	for _, batch := range []int{1, 2} {
		t.Run(fmt.Sprintf("batch_size_%d", batch), func(t *testing.T) {
			db := setupDB(t, map[string]*geonames.Schema{"ORG_GEONAMES_GEONAMES": geonames.GeonamesSchema})
			cfg := importConfig()
			cfg.BatchSize = batch
			reporter := &captureReporter{}
			svc := loader.NewService(db, db.Handler, cfg, loader.WithReporter(reporter))

			input := sanDiego + "\r\n" + springfld + "\n"
			summary, err := svc.LoadGeonames(context.Background(), strings.NewReader(input), "US", "US.zip/US.txt", "etag-1")
			require.NoError(t, err)

			assert.Equal(t, 2, summary.Upserted)
			assert.Equal(t, "ORG_GEONAMES_GEONAMES", summary.Table)
			assert.Equal(t, "US", summary.Country)
			assert.Equal(t, "etag-1", summary.ETag)
			assert.NotEmpty(t, summary.RunID)
			assert.Equal(t, map[string]string{
				"5391811": "San Diego",
				"4250542": `"Springfield,IL"`,
			}, names(t, db))

			require.Len(t, reporter.runs, 1)
			assert.Equal(t, "geonames", reporter.runs[0].Dataset)
			assert.Equal(t, 2, reporter.runs[0].Upserted)
		})
	}
}

func TestLoadGeonamesUpdatesExistingRows(t *testing.T) {
	db := setupDB(t, map[string]*geonames.Schema{"ORG_GEONAMES_GEONAMES": geonames.GeonamesSchema})
	svc := loader.NewService(db, db.Handler, importConfig())
	ctx := context.Background()

	_, err := svc.LoadGeonames(ctx, strings.NewReader(sanDiego), "US", "", "")
	require.NoError(t, err)

	renamed := strings.Replace(sanDiego, "\tSan Diego\t", "\tSan Diego City\t", 1)
	_, err = svc.LoadGeonames(ctx, strings.NewReader(renamed), "US", "", "")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"5391811": "San Diego City"}, names(t, db))
}

func TestLoadGeonamesReportsMalformedLines(t *testing.T) {
	db := setupDB(t, map[string]*geonames.Schema{"ORG_GEONAMES_GEONAMES": geonames.GeonamesSchema})
	svc := loader.NewService(db, db.Handler, importConfig())

	input := sanDiego + "\n\n12345\ttoo short\n" + springfld
	summary, err := svc.LoadGeonames(context.Background(), strings.NewReader(input), "US", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, geonames.ErrFieldCount)

	assert.Equal(t, 4, summary.Lines)
	assert.Equal(t, 2, summary.Upserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Malformed)
	assert.Len(t, names(t, db), 2, "valid lines around a malformed one are still loaded")
}

func TestLoadGeonamesMissingTableFailsEveryRow(t *testing.T) {
	db := setupDB(t, nil)
	svc := loader.NewService(db, db.Handler, importConfig())

	summary, err := svc.LoadGeonames(context.Background(), strings.NewReader(sanDiego+"\n"+springfld), "US", "", "")
	require.Error(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Zero(t, summary.Upserted)
}

func TestLoadAlternateNames(t *testing.T) {
	db := setupDB(t, map[string]*geonames.Schema{"ALT_NAMES": geonames.AlternateNamesSchema})
	ctx := context.Background()
	input := "1\t5391811\ten\tSan Diego, California\t1\t0\t0\t0\t\t\n2\t5391811\tes\tSan Diego\t\t\t\t\t\t\n"

	t.Run("table not configured", func(t *testing.T) {
		svc := loader.NewService(db, db.Handler, importConfig())
		_, err := svc.LoadAlternateNames(ctx, strings.NewReader(input), "", "alternateNamesV2.txt", "")
		assert.ErrorIs(t, err, loader.ErrTableNotConfigured)

		var n int
		require.NoError(t, db.Pool.QueryRow(`SELECT COUNT(*) FROM "ALT_NAMES"`).Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("configured", func(t *testing.T) {
		cfg := importConfig()
		cfg.AlternateNamesTable = "ALT_NAMES"
		svc := loader.NewService(db, db.Handler, cfg)

		summary, err := svc.LoadAlternateNames(ctx, strings.NewReader(input), "", "alternateNamesV2.txt", "")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Upserted)
		assert.Equal(t, "alternate-names", summary.Dataset)

		var name string
		require.NoError(t, db.Pool.QueryRow(`SELECT "AlternateName" FROM "ALT_NAMES" WHERE "AlternateNameId" = '1'`).Scan(&name))
		assert.Equal(t, `"San Diego, California"`, name)
	})
}

func TestLoadDecodesLatin1(t *testing.T) {
	db := setupDB(t, map[string]*geonames.Schema{"ORG_GEONAMES_GEONAMES": geonames.GeonamesSchema})
	cfg := importConfig()
	cfg.Encoding = "latin1"
	svc := loader.NewService(db, db.Handler, cfg)

	// "Zürich" with ü as the single Latin-1 byte 0xFC
	line := strings.Replace(sanDiego, "San Diego\tSan Diego\tSD,San Diego", "Z\xfcrich\tZurich\t", 1)
	_, err := svc.LoadGeonames(context.Background(), strings.NewReader(line), "CH", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Zürich", names(t, db)["5391811"])
}

func TestDryRunWritesStatements(t *testing.T) {
	db := setupDB(t, nil)
	var out bytes.Buffer
	var results []loader.RowResult
	svc := loader.NewDryRunService(&out, db.Handler, importConfig(),
		loader.WithResultHandler(func(r loader.RowResult) { results = append(results, r) }))

	summary, err := svc.LoadGeonames(context.Background(), strings.NewReader(sanDiego+"\n"+springfld), "US", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Upserted)
	assert.Len(t, results, 2)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "statement once, then one value line per row")
	assert.True(t, strings.HasPrefix(lines[0], `INSERT INTO "ORG_GEONAMES_GEONAMES"`))
	assert.True(t, strings.HasPrefix(lines[1], `-- ("5391811", "San Diego", `))
	assert.Contains(t, lines[2], `"\"Springfield,IL\""`)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		in       string
		want     string
	}{
		{"utf8 bom stripped", "", "\xef\xbb\xbfa\tb", "a\tb"},
		{"utf8 passthrough", "utf-8", "Zürich", "Zürich"},
		{"latin1", "latin1", "Z\xfcrich", "Zürich"},
		{"windows-1252", "windows-1252", "\x80", "€"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := loader.Decode(strings.NewReader(tt.in), tt.encoding)
			require.NoError(t, err)
			var b bytes.Buffer
			_, err = b.ReadFrom(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.String())
		})
	}

	_, err := loader.Decode(strings.NewReader(""), "klingon")
	var invalid *loader.ErrInvalidInput
	assert.ErrorAs(t, err, &invalid)
}
