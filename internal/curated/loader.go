package curated

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/platform/logger"
	"github.com/eventpulse/eventpulse/internal/tabular"
)

// Lineage columns appended to every curated table.
const (
	ColIngestionID  = "_ingestion_id"
	ColLoadedAt     = "_loaded_at"
	ColSourceSHA256 = "_source_sha256"
)

var postgresTypes = map[string]string{
	contracts.TypeString:   "TEXT",
	contracts.TypeInteger:  "BIGINT",
	contracts.TypeNumber:   "DOUBLE PRECISION",
	contracts.TypeBoolean:  "BOOLEAN",
	contracts.TypeDatetime: "TIMESTAMPTZ",
}

var sqliteTypes = map[string]string{
	contracts.TypeString:   "TEXT",
	contracts.TypeInteger:  "INTEGER",
	contracts.TypeNumber:   "REAL",
	contracts.TypeBoolean:  "BOOLEAN",
	contracts.TypeDatetime: "TIMESTAMP",
}

// TableName is the curated table for a normalized dataset name.
func TableName(dataset string) string {
	return "curated_" + dataset
}

// Loader writes contract-shaped rows into per-dataset curated tables. With a
// primary key the load is a keyed upsert and re-running an ingestion leaves
// the table unchanged; without one it is a plain append.
type Loader struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLoader(db *gorm.DB, baseLog *logger.Logger) *Loader {
	return &Loader{
		db:  db,
		log: baseLog.With("component", "CuratedLoader"),
	}
}

// Load ensures the curated table exists (adding any newly declared contract
// columns), reshapes the batch to the contract's column order, and writes it.
// Returns the number of rows written.
func (l *Loader) Load(ctx context.Context, tx *gorm.DB, contract *contracts.Contract, batch *tabular.Batch, ingestionID uuid.UUID, sourceSHA256 string) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = l.db
	}

	table := TableName(contract.Dataset)
	if err := l.ensureTable(ctx, transaction, table, contract); err != nil {
		return 0, fmt.Errorf("ensure curated table %s: %w", table, err)
	}
	if err := l.evolveTable(ctx, transaction, table, contract); err != nil {
		return 0, fmt.Errorf("evolve curated table %s: %w", table, err)
	}

	if batch.RowCount() == 0 {
		return 0, nil
	}

	allCols := append(append([]string{}, contract.Columns.Order...), ColIngestionID, ColLoadedAt, ColSourceSHA256)
	loadedAt := time.Now().UTC()

	rows := make([][]interface{}, 0, batch.RowCount())
	for i := 0; i < batch.RowCount(); i++ {
		row := make([]interface{}, 0, len(allCols))
		for _, name := range contract.Columns.Order {
			spec := contract.Columns.Specs[name]
			if !batch.HasColumn(name) {
				row = append(row, nil)
				continue
			}
			row = append(row, coerce(batch.Cell(i, name), spec.Type))
		}
		row = append(row, ingestionID.String(), loadedAt, sourceSHA256)
		rows = append(rows, row)
	}

	if err := l.insertRows(ctx, transaction, table, contract, allCols, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (l *Loader) ensureTable(ctx context.Context, tx *gorm.DB, table string, contract *contracts.Contract) error {
	types := typeMapFor(tx)

	defs := make([]string, 0, len(contract.Columns.Order)+3)
	for _, name := range contract.Columns.Order {
		spec := contract.Columns.Specs[name]
		defs = append(defs, quoteIdent(name)+" "+sqlType(types, spec.Type))
	}
	idType := "UUID"
	if dialect(tx) == "sqlite" {
		idType = "TEXT"
	}
	defs = append(defs,
		quoteIdent(ColIngestionID)+" "+idType+" NOT NULL",
		quoteIdent(ColLoadedAt)+" "+types[contracts.TypeDatetime]+" NOT NULL",
		quoteIdent(ColSourceSHA256)+" TEXT NOT NULL",
	)

	pkSQL := ""
	if contract.PrimaryKey != "" {
		pkSQL = ", PRIMARY KEY (" + quoteIdent(contract.PrimaryKey) + ")"
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s%s)", quoteIdent(table), strings.Join(defs, ", "), pkSQL)
	return tx.WithContext(ctx).Exec(stmt).Error
}

// evolveTable adds columns the contract declares but the table lacks. Schema
// evolution here is strictly additive; nothing is dropped or retyped.
func (l *Loader) evolveTable(ctx context.Context, tx *gorm.DB, table string, contract *contracts.Contract) error {
	existing, err := l.tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}

	types := typeMapFor(tx)
	var added []string
	for _, name := range contract.Columns.Order {
		if _, ok := existing[name]; ok {
			continue
		}
		spec := contract.Columns.Specs[name]
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(name), sqlType(types, spec.Type))
		if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("add column %s: %w", name, err)
		}
		added = append(added, name)
	}
	if len(added) > 0 {
		sort.Strings(added)
		l.log.Info("curated table evolved", "table", table, "added_columns", strings.Join(added, ","))
	}
	return nil
}

func (l *Loader) tableColumns(ctx context.Context, tx *gorm.DB, table string) (map[string]struct{}, error) {
	cols := map[string]struct{}{}
	if dialect(tx) == "sqlite" {
		var rows []struct {
			Name string `gorm:"column:name"`
		}
		if err := tx.WithContext(ctx).Raw(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			cols[r.Name] = struct{}{}
		}
		return cols, nil
	}

	var names []string
	err := tx.WithContext(ctx).Raw(
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?",
		table,
	).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		cols[n] = struct{}{}
	}
	return cols, nil
}

func (l *Loader) insertRows(ctx context.Context, tx *gorm.DB, table string, contract *contracts.Contract, allCols []string, rows [][]interface{}) error {
	quoted := make([]string, len(allCols))
	for i, c := range allCols {
		quoted[i] = quoteIdent(c)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(allCols)), ", ") + ")"

	conflictSQL := ""
	if pk := contract.PrimaryKey; pk != "" {
		sets := make([]string, 0, len(allCols)-1)
		for _, c := range allCols {
			if c == pk {
				continue
			}
			sets = append(sets, quoteIdent(c)+" = excluded."+quoteIdent(c))
		}
		conflictSQL = " ON CONFLICT (" + quoteIdent(pk) + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}

	// Keep each statement under common bind-parameter limits.
	chunk := 500
	if len(allCols)*chunk > 900 {
		chunk = 900 / len(allCols)
		if chunk < 1 {
			chunk = 1
		}
	}

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		values := make([]string, len(part))
		args := make([]interface{}, 0, len(part)*len(allCols))
		for i, row := range part {
			values[i] = placeholder
			args = append(args, row...)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s",
			quoteIdent(table), strings.Join(quoted, ", "), strings.Join(values, ", "), conflictSQL)
		if err := tx.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

// coerce converts a cell to the contract's declared type on a best-effort
// basis. Values that cannot be interpreted become NULL rather than failing
// the whole load; the quality gate already bounded how many of those exist.
func coerce(v tabular.Value, logicalType string) interface{} {
	if v.IsNull() {
		return nil
	}
	s := v.Text()
	switch logicalType {
	case contracts.TypeInteger:
		if f, ok := tabular.ParseFloat(s); ok && tabular.IsIntegral(f) {
			return int64(f)
		}
		return nil
	case contracts.TypeNumber:
		if f, ok := tabular.ParseFloat(s); ok {
			return f
		}
		return nil
	case contracts.TypeBoolean:
		if b, ok := tabular.ParseBool(s); ok {
			return b
		}
		return nil
	case contracts.TypeDatetime:
		if t, ok := tabular.ParseTime(s); ok {
			return t
		}
		return nil
	default:
		return s
	}
}

func dialect(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil {
		return "postgres"
	}
	return tx.Dialector.Name()
}

func typeMapFor(tx *gorm.DB) map[string]string {
	if dialect(tx) == "sqlite" {
		return sqliteTypes
	}
	return postgresTypes
}

func sqlType(types map[string]string, logicalType string) string {
	if t, ok := types[logicalType]; ok {
		return t
	}
	return "TEXT"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
