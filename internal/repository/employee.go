package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
)

// EmployeeRepository persists employee records keyed by employee id.
type EmployeeRepository interface {
	FindByID(ctx context.Context, employeeID string) (*models.Employee, error)
	FindManyByIDs(ctx context.Context, employeeIDs []string) ([]models.Employee, error)
	List(ctx context.Context) ([]models.Employee, error)
	Create(ctx context.Context, employee *models.Employee) error
	Upsert(ctx context.Context, employee *models.Employee) error
	InsertMany(ctx context.Context, employees []models.Employee) error
}

type employeeRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewEmployeeRepository(db *sqlx.DB, logger *zap.Logger) EmployeeRepository {
	return &employeeRepository{db: db, logger: logger}
}

const employeeColumns = `id, employee_id, name, role, employment_type, status, check_in, check_out, work_type, created_at, updated_at`

const insertEmployee = `INSERT INTO employees (employee_id, name, role, employment_type, status, check_in, check_out, work_type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func employeeArgs(e *models.Employee) []interface{} {
	return []interface{}{e.EmployeeID, e.Name, e.Role, e.EmploymentType, e.Status, e.CheckIn, e.CheckOut, e.WorkType}
}

// FindByID returns (nil, nil) when the employee does not exist.
func (r *employeeRepository) FindByID(ctx context.Context, employeeID string) (*models.Employee, error) {
	var employee models.Employee
	query := r.db.Rebind(`SELECT ` + employeeColumns + ` FROM employees WHERE employee_id = ?`)
	if err := r.db.GetContext(ctx, &employee, query, employeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find employee %q: %w", employeeID, err)
	}
	return &employee, nil
}

// FindManyByIDs returns the subset of employeeIDs that exist, in no
// particular order.
func (r *employeeRepository) FindManyByIDs(ctx context.Context, employeeIDs []string) ([]models.Employee, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+employeeColumns+` FROM employees WHERE employee_id IN (?)`, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("build employee lookup: %w", err)
	}

	var employees []models.Employee
	if err := r.db.SelectContext(ctx, &employees, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	return employees, nil
}

func (r *employeeRepository) List(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	query := `SELECT ` + employeeColumns + ` FROM employees ORDER BY employee_id`
	if err := r.db.SelectContext(ctx, &employees, query); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employees, nil
}

// Create inserts employee. An existing employee id yields common.ErrConflict.
func (r *employeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	query := r.db.Rebind(insertEmployee + ` RETURNING id`)
	err := r.db.QueryRowxContext(ctx, query, employeeArgs(employee)...).Scan(&employee.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("employee %q: %w", employee.EmployeeID, common.ErrConflict)
		}
		r.logger.Error("Failed to create employee", zap.String("employee_id", employee.EmployeeID), zap.Error(err))
		return fmt.Errorf("create employee %q: %w", employee.EmployeeID, err)
	}
	return nil
}

// Upsert inserts employee or overwrites every field of the existing record
// with the same employee id.
func (r *employeeRepository) Upsert(ctx context.Context, employee *models.Employee) error {
	query := r.db.Rebind(insertEmployee + `
	ON CONFLICT (employee_id) DO UPDATE SET
		name = excluded.name,
		role = excluded.role,
		employment_type = excluded.employment_type,
		status = excluded.status,
		check_in = excluded.check_in,
		check_out = excluded.check_out,
		work_type = excluded.work_type,
		updated_at = CURRENT_TIMESTAMP
	RETURNING id`)
	err := r.db.QueryRowxContext(ctx, query, employeeArgs(employee)...).Scan(&employee.ID)
	if err != nil {
		r.logger.Error("Failed to upsert employee", zap.String("employee_id", employee.EmployeeID), zap.Error(err))
		return fmt.Errorf("upsert employee %q: %w", employee.EmployeeID, err)
	}
	return nil
}

// InsertMany inserts employees in a single transaction. The batch is all or
// nothing: the first duplicate employee id rolls everything back and yields
// common.ErrConflict naming that id.
func (r *employeeRepository) InsertMany(ctx context.Context, employees []models.Employee) error {
	if len(employees) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind(insertEmployee)
		for i := range employees {
			if _, err := tx.ExecContext(ctx, query, employeeArgs(&employees[i])...); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("employee %q: %w", employees[i].EmployeeID, common.ErrConflict)
				}
				return fmt.Errorf("insert employee %q: %w", employees[i].EmployeeID, err)
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}
