// Package schooldb owns the two-table demo database: its schema, the literal
// fixture rows, and the startup reset that reloads them.
package schooldb

import (
	"errors"
	"fmt"
)

const (
	StudentsTable    = "students"
	DepartmentsTable = "departments"
)

var ErrUnknownTable = errors.New("unknown table")

type Student struct {
	ID         int64
	Name       string
	Age        int
	Marks      int
	Department string
}

type Department struct {
	Code     string
	Name     string
	HOD      string
	Building string
}

// Students returns the demo student rows in insertion order.
func Students() []Student {
	return []Student{
		{ID: 1, Name: "Rahul", Age: 20, Marks: 85, Department: "CSE"},
		{ID: 2, Name: "Anita", Age: 21, Marks: 92, Department: "ECE"},
		{ID: 3, Name: "Aman", Age: 19, Marks: 78, Department: "ME"},
		{ID: 4, Name: "Sneha", Age: 22, Marks: 88, Department: "CSE"},
		{ID: 5, Name: "Rohit", Age: 20, Marks: 65, Department: "CE"},
	}
}

// Departments returns the demo department rows in insertion order.
func Departments() []Department {
	return []Department{
		{Code: "CSE", Name: "Computer Science Engineering", HOD: "Dr. Sharma", Building: "Block A"},
		{Code: "ECE", Name: "Electronics & Communication", HOD: "Dr. Verma", Building: "Block B"},
		{Code: "ME", Name: "Mechanical Engineering", HOD: "Dr. Singh", Building: "Block C"},
		{Code: "CE", Name: "Civil Engineering", HOD: "Dr. Gupta", Building: "Block D"},
	}
}

func Tables() []string {
	return []string{StudentsTable, DepartmentsTable}
}

// PreviewSQL returns the statement used to render the live preview of a
// known table. Any other name is rejected so callers never interpolate user
// input into SQL.
func PreviewSQL(table string) (string, error) {
	switch table {
	case StudentsTable:
		return "SELECT * FROM students ORDER BY id", nil
	case DepartmentsTable:
		return "SELECT * FROM departments", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}

// SchemaDescription is the schema text handed to the SQL generator.
func SchemaDescription() string {
	return `Table: students
Columns:
- id (INTEGER)
- name (TEXT)
- age (INTEGER)
- marks (INTEGER)
- department (TEXT)

Table: departments
Columns:
- dept_code (TEXT)
- dept_name (TEXT)
- hod (TEXT)
- building (TEXT)

Relationship:
- students.department = departments.dept_code`
}
