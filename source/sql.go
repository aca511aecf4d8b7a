package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DBTX is the database access interface for SQLSource.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLSource serves pages straight from a PostgreSQL table, pushing search,
// sort, and paging down into SQL.
type SQLSource struct {
	// DB executes the queries.
	DB DBTX
	// Table is the table or view name.
	Table string
	// Columns lists the selectable columns in display order. Sort fields
	// are validated against this list before being interpolated.
	Columns []string
}

// LoadPage runs a COUNT plus a LIMIT/OFFSET select sharing one WHERE clause.
func (s *SQLSource) LoadPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if s.Table == "" || len(s.Columns) == 0 {
		return nil, &LoadError{Op: "query", URL: s.Table,
			Err: fmt.Errorf("sql source needs a table and columns")}
	}

	whereClause, args := s.buildWhere(req.Search)

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdentifier(s.Table), whereClause)
	if err := s.DB.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, &LoadError{Op: "query", URL: s.Table, Err: fmt.Errorf("count rows: %w", err)}
	}

	quotedCols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		quotedCols[i] = quoteIdentifier(c)
	}

	orderBy := quotedCols[0] + " ASC"
	if req.SortField != "" && s.hasColumn(req.SortField) {
		dir := "ASC"
		if req.SortDirection == Descending {
			dir = "DESC"
		}
		orderBy = quoteIdentifier(req.SortField) + " " + dir
	}

	argIdx := len(args) + 1
	querySQL := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(quotedCols, ", "), quoteIdentifier(s.Table), whereClause,
		orderBy, argIdx, argIdx+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := s.DB.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, &LoadError{Op: "query", URL: s.Table, Err: fmt.Errorf("query rows: %w", err)}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &LoadError{Op: "query", URL: s.Table, Err: fmt.Errorf("read row values: %w", err)}
		}
		row := make(Row, len(s.Columns))
		for i, col := range s.Columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Op: "query", URL: s.Table, Err: fmt.Errorf("rows error: %w", err)}
	}

	return &PageResult{Rows: out, TotalRecords: total}, nil
}

// buildWhere produces an ILIKE-across-all-columns clause for the search term.
func (s *SQLSource) buildWhere(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = fmt.Sprintf("%s::text ILIKE $1", quoteIdentifier(c))
	}
	return " WHERE (" + strings.Join(parts, " OR ") + ")", []any{"%" + search + "%"}
}

func (s *SQLSource) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
