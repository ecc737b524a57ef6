package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jchantrell/unitypack/internal/database"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the index database directly from command line",
	Long: `Query executes SQL against the index database, lists its tables, or shows
a table's schema.

Example:
  unitypack query "SELECT type_name, COUNT(*) FROM objects GROUP BY type_name"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		listTables, err := cmd.Flags().GetBool("tables")
		if err != nil {
			return fmt.Errorf("failed to get tables flag: %w", err)
		}
		schemaTable, err := cmd.Flags().GetString("schema")
		if err != nil {
			return fmt.Errorf("failed to get schema flag: %w", err)
		}

		slog.Debug("Query parameters",
			"database", cfg.Database,
			"list-tables", listTables,
			"schema", schemaTable)

		db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		switch {
		case listTables:
			return printTables(ctx, out, db)
		case schemaTable != "":
			return printSchema(ctx, out, db, schemaTable)
		case len(args) > 0:
			return printQuery(ctx, out, db, args[0])
		}

		return fmt.Errorf("no query provided, use --tables to list tables or --schema <table> to show schema")
	},
}

func printTables(ctx context.Context, out io.Writer, db *database.Database) error {
	tables, err := db.Tables(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available tables:")
	for _, name := range tables {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func printSchema(ctx context.Context, out io.Writer, db *database.Database, table string) error {
	columns, err := db.TableInfo(ctx, table)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Schema for table '%s':\n", table)
	fmt.Fprintf(out, "%-20s %-35s %-10s %-10s %-7s\n", "Column", "Type", "NotNull", "Default", "Primary")
	fmt.Fprintln(out, strings.Repeat("-", 86))

	for _, c := range columns {
		defaultStr := "NULL"
		if c.Default != nil {
			defaultStr = fmt.Sprintf("%v", c.Default)
		}
		fmt.Fprintf(out, "%-20s %-35s %-10s %-10s %-7s\n",
			c.Name, c.Type, yesNo(c.NotNull), defaultStr, yesNo(c.PrimaryKey))
	}
	return nil
}

func printQuery(ctx context.Context, out io.Writer, db *database.Database, query string) error {
	slog.Debug("Executing SQL query", "query", query)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("getting column names: %w", err)
	}

	fmt.Fprintln(out, strings.Join(columns, "\t"))

	separators := make([]string, len(columns))
	for i, col := range columns {
		separators[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(out, strings.Join(separators, "\t"))

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		fields := make([]string, len(values))
		for i, val := range values {
			switch v := val.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(v)
			default:
				fields[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(out, strings.Join(fields, "\t"))
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("tables", false, "List available tables")
	queryCmd.Flags().String("schema", "", "Show schema for specified table")
}
