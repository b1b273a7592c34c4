package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ridoystarlord/sheetmatch/schema"
)

// DefaultSchema is the Postgres schema read when none is given.
const DefaultSchema = "public"

// Querier is the part of a pgx pool or connection the catalog reader uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ExistingTable struct {
	TableName string
	Columns   []ExistingColumn
}

type ExistingColumn struct {
	ColumnName string
	DataType   string
	IsNullable bool
}

// LoadCatalog reads the catalog snapshot of one database schema. Any
// failure is reported as schema.ErrCatalogUnavailable; an empty database
// yields an empty catalog.
func LoadCatalog(ctx context.Context, q Querier, dbSchema string) (*schema.Catalog, error) {
	tables, err := IntrospectDatabase(ctx, q, dbSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrCatalogUnavailable, err)
	}
	return ToCatalog(tables), nil
}

func IntrospectDatabase(ctx context.Context, q Querier, dbSchema string) ([]ExistingTable, error) {
	if q == nil {
		return nil, fmt.Errorf("no database connection")
	}
	if dbSchema == "" {
		dbSchema = DefaultSchema
	}

	tablesQuery := `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type='BASE TABLE'
	ORDER BY table_name;
	`

	rows, err := q.Query(ctx, tablesQuery, dbSchema)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %v", err)
	}

	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning table name: %v", err)
		}
		tableNames = append(tableNames, tableName)
	}
	rows.Close()

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating table rows: %v", rows.Err())
	}

	var tables []ExistingTable
	for _, tableName := range tableNames {
		columns, err := getColumns(ctx, q, dbSchema, tableName)
		if err != nil {
			return nil, fmt.Errorf("getting columns for table %s: %v", tableName, err)
		}

		tables = append(tables, ExistingTable{
			TableName: tableName,
			Columns:   columns,
		})
	}

	return tables, nil
}

// ToCatalog maps introspected tables onto the catalog model. Non-nullable
// columns are reported as required.
func ToCatalog(tables []ExistingTable) *schema.Catalog {
	out := make([]schema.TableSchema, 0, len(tables))
	for _, t := range tables {
		ts := schema.TableSchema{Name: t.TableName, Origin: schema.Existing}
		for _, c := range t.Columns {
			ts.Columns = append(ts.Columns, schema.FieldInfo{
				Name:       c.ColumnName,
				Type:       schema.ParseDataType(c.DataType),
				RawType:    c.DataType,
				IsRequired: !c.IsNullable,
				Origin:     schema.Existing,
			})
		}
		out = append(out, ts)
	}
	return schema.NewCatalog(out)
}

func getColumns(ctx context.Context, q Querier, dbSchema, tableName string) ([]ExistingColumn, error) {
	columnsQuery := `
	SELECT
		c.column_name,
		c.data_type,
		(c.is_nullable = 'YES') as is_nullable
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position;
	`

	rows, err := q.Query(ctx, columnsQuery, dbSchema, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %v", err)
	}
	defer rows.Close()

	var columns []ExistingColumn
	for rows.Next() {
		var col ExistingColumn
		if err := rows.Scan(
			&col.ColumnName,
			&col.DataType,
			&col.IsNullable,
		); err != nil {
			return nil, fmt.Errorf("scanning column: %v", err)
		}
		columns = append(columns, col)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterating column rows: %v", rows.Err())
	}

	return columns, nil
}
