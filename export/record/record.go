package record

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
)

// Header is the first line of every exported file.
const Header = "EmployeeID,Name,Department"

// Columns are the column names of the data table, in select order.
var Columns = []string{"employee_id", "name", "department"}

// Record is one exported row.
// EmployeeID is not required to be unique, duplicates are exported as they come.
type Record struct {
	EmployeeID uuid.UUID
	Name       sql.NullString
	Department sql.NullString
}

// Line formats the record as `id,name,department`. NULL values are written as empty strings.
// Delimiters inside values are not escaped.
func (r Record) Line() string {
	var b strings.Builder
	b.Grow(36 + 2 + len(r.Name.String) + len(r.Department.String))
	b.WriteString(r.EmployeeID.String())
	b.WriteByte(',')
	if r.Name.Valid {
		b.WriteString(r.Name.String)
	}
	b.WriteByte(',')
	if r.Department.Valid {
		b.WriteString(r.Department.String)
	}
	return b.String()
}

// Text wraps s as a non-NULL value.
func Text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
