package models

import (
	"strings"
	"time"
)

// Employee is the canonical employee record. EmployeeID is the business key.
type Employee struct {
	ID             int64     `db:"id" json:"-"`
	EmployeeID     string    `db:"employee_id" json:"employeeId" binding:"required"`
	Name           string    `db:"name" json:"name"`
	Role           string    `db:"role" json:"role"`
	EmploymentType string    `db:"employment_type" json:"employmentType"`
	Status         string    `db:"status" json:"status"`
	CheckIn        string    `db:"check_in" json:"checkIn"`
	CheckOut       string    `db:"check_out" json:"checkOut"`
	WorkType       string    `db:"work_type" json:"workType"`
	CreatedAt      time.Time `db:"created_at" json:"-"`
	UpdatedAt      time.Time `db:"updated_at" json:"-"`
}

// Fields returns the eight employee fields in column order.
func (e Employee) Fields() []string {
	return []string{
		e.EmployeeID,
		e.Name,
		e.Role,
		e.EmploymentType,
		e.Status,
		e.CheckIn,
		e.CheckOut,
		e.WorkType,
	}
}

// EmployeeFromFields builds an Employee from cells in column order. Missing
// trailing cells are left empty.
func EmployeeFromFields(cells []string) Employee {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Employee{
		EmployeeID:     cell(0),
		Name:           cell(1),
		Role:           cell(2),
		EmploymentType: cell(3),
		Status:         cell(4),
		CheckIn:        cell(5),
		CheckOut:       cell(6),
		WorkType:       cell(7),
	}
}

// Trimmed returns a copy of e with surrounding whitespace removed from the
// eight employee fields. Workbook and spreadsheet reads trim cells, so every
// write goes through Trimmed to keep ids comparable.
func (e Employee) Trimmed() Employee {
	fields := e.Fields()
	for i, v := range fields {
		fields[i] = strings.TrimSpace(v)
	}
	t := EmployeeFromFields(fields)
	t.ID, t.CreatedAt, t.UpdatedAt = e.ID, e.CreatedAt, e.UpdatedAt
	return t
}

// TrimEmployees returns the trimmed copies of employees.
func TrimEmployees(employees []Employee) []Employee {
	if employees == nil {
		return nil
	}
	out := make([]Employee, len(employees))
	for i, e := range employees {
		out[i] = e.Trimmed()
	}
	return out
}

// EmployeeIDs returns the business keys of employees in order.
func EmployeeIDs(employees []Employee) []string {
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.EmployeeID
	}
	return ids
}
