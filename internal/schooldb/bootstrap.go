package schooldb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/schema.sql
var schemaSQL string

// Bootstrap drops both tables, recreates them and loads the fixture rows in
// a single transaction. It is not safe against concurrent writers.
func Bootstrap(ctx context.Context, db *sql.DB, dialect Dialect) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range splitStatements(schemaSQL) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	insertDepartment := "INSERT INTO departments (dept_code, dept_name, hod, building) VALUES (" + placeholders(dialect, 4) + ")"
	for _, d := range Departments() {
		if _, err := tx.ExecContext(ctx, insertDepartment, d.Code, d.Name, d.HOD, d.Building); err != nil {
			return fmt.Errorf("insert department %q: %w", d.Code, err)
		}
	}

	insertStudent := "INSERT INTO students (id, name, age, marks, department) VALUES (" + placeholders(dialect, 5) + ")"
	for _, s := range Students() {
		if _, err := tx.ExecContext(ctx, insertStudent, s.ID, s.Name, s.Age, s.Marks, s.Department); err != nil {
			return fmt.Errorf("insert student %d: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func placeholders(dialect Dialect, count int) string {
	marks := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		marks = append(marks, dialect.Placeholder(i))
	}
	return strings.Join(marks, ", ")
}

// splitStatements breaks the embedded schema into single statements. The
// schema holds no string literals, so splitting on ';' is exact.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
