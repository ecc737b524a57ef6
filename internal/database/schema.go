package database

import (
	"context"
	"fmt"
	"strings"
)

// SchemaProgressCallback is called during schema creation to report progress
type SchemaProgressCallback func(current int, total int, description string)

// DDLRequest is one statement of the index schema
type DDLRequest struct {
	Type        string // "table" or "index"
	DDL         string
	TableName   string
	Description string
}

// Table names of the bundle index
const (
	TableBundles = "bundles"
	TableAssets  = "assets"
	TableObjects = "objects"
)

type columnDef struct {
	name string
	decl string
}

var indexTables = []struct {
	name        string
	columns     []columnDef
	constraints []string
}{
	{
		name: TableBundles,
		columns: []columnDef{
			{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
			{"path", "TEXT NOT NULL UNIQUE"},
			{"signature", "TEXT NOT NULL"},
			{"version", "INTEGER NOT NULL"},
			{"player_version", "TEXT"},
			{"engine_version", "TEXT"},
			{"compression", "TEXT"},
			{"size", "INTEGER NOT NULL"},
			{"indexed_at", "TEXT NOT NULL"},
		},
	},
	{
		name: TableAssets,
		columns: []columnDef{
			{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
			{"bundle_id", "INTEGER NOT NULL"},
			{"index", "INTEGER NOT NULL"},
			{"name", "TEXT NOT NULL"},
			{"resource", "INTEGER NOT NULL"},
			{"format", "INTEGER"},
			{"unity_version", "TEXT"},
			{"unity_major", "INTEGER"},
			{"unity_minor", "INTEGER"},
			{"platform", "TEXT"},
			{"big_endian", "INTEGER"},
			{"size", "INTEGER NOT NULL"},
		},
		constraints: []string{
			`FOREIGN KEY ("bundle_id") REFERENCES "bundles"("id") ON DELETE CASCADE`,
			`UNIQUE ("bundle_id", "index")`,
		},
	},
	{
		name: TableObjects,
		columns: []columnDef{
			{"asset_id", "INTEGER NOT NULL"},
			{"path_id", "INTEGER NOT NULL"},
			{"class_id", "INTEGER NOT NULL"},
			{"type_name", "TEXT NOT NULL"},
			{"offset", "INTEGER NOT NULL"},
			{"size", "INTEGER NOT NULL"},
		},
		constraints: []string{
			`PRIMARY KEY ("asset_id", "path_id")`,
			`FOREIGN KEY ("asset_id") REFERENCES "assets"("id") ON DELETE CASCADE`,
		},
	},
}

// DDLManager creates the index schema
type DDLManager struct {
	db *Database
}

// NewDDLManager creates a new DDL manager
func NewDDLManager(db *Database) *DDLManager {
	return &DDLManager{db: db}
}

// GenerateDDL returns the statements of the index schema, tables first
func (dm *DDLManager) GenerateDDL() []DDLRequest {
	var requests []DDLRequest

	for _, table := range indexTables {
		var parts []string
		for _, c := range table.columns {
			parts = append(parts, quoteSQLIdentifier(c.name)+" "+c.decl)
		}
		parts = append(parts, table.constraints...)

		requests = append(requests, DDLRequest{
			Type: "table",
			DDL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
				quoteSQLIdentifier(table.name), strings.Join(parts, ",\n  ")),
			TableName:   table.name,
			Description: table.name,
		})
	}

	requests = append(requests,
		indexDDL("idx_objects_type_name", TableObjects, "type_name"),
		indexDDL("idx_objects_class_id", TableObjects, "class_id"),
		indexDDL("idx_assets_name", TableAssets, "name"),
	)

	return requests
}

func indexDDL(name, table, column string) DDLRequest {
	return DDLRequest{
		Type: "index",
		DDL: fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			quoteSQLIdentifier(name), quoteSQLIdentifier(table), quoteSQLIdentifier(column)),
		TableName:   table,
		Description: name,
	}
}

// CreateSchema creates any missing index tables in a single transaction
func (dm *DDLManager) CreateSchema(ctx context.Context, progressCallback SchemaProgressCallback) error {
	requests := dm.GenerateDDL()

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	for i, req := range requests {
		if _, err := tx.ExecContext(ctx, req.DDL); err != nil {
			return fmt.Errorf("executing DDL for %s: %w", req.Description, err)
		}

		if progressCallback != nil {
			progressCallback(i+1, len(requests), req.Description)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
