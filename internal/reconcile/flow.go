// Package reconcile merges employee records coming from a workbook, a remote
// spreadsheet or a request body into the record store without duplicating
// employee ids.
//
// Two policies are used, one per direction:
//
//   - imports (workbook read, remote sync) are insert-only: new ids are
//     created, ids already in the store are skipped;
//   - exports (workbook write) filter out ids already in the store, upsert the
//     rest and append them to the workbook. An export with nothing left is
//     rejected with ErrNothingToDo.
//
// Store writes are not rolled back across records. A failure in the per
// record loops is collected, the loop carries on, and the combined error is
// returned together with the partial Result.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
	"employee-manager/internal/repository"
)

// State is the step a reconciliation reached.
type State string

const (
	StateReceived         State = "received"
	StateParsed           State = "parsed"
	StateDuplicateChecked State = "duplicate_checked"
	StateExistenceChecked State = "existence_checked"
	StateApplied          State = "applied"
	StateDone             State = "done"
	StateRejected         State = "rejected"
)

var ErrNothingToDo = fmt.Errorf("all employee ids already exist: %w", common.ErrValidation)

// FileAdapter reads and writes employee workbooks. CheckTarget reports
// whether ExportTo can save at path.
type FileAdapter interface {
	ImportFrom(path string) ([]models.Employee, error)
	ExportTo(path string, records []models.Employee) error
	CheckTarget(path string) error
}

// RemoteAdapter reads and appends rows of the remote spreadsheet.
type RemoteAdapter interface {
	FetchRows(ctx context.Context, rng string) ([][]string, error)
	AppendRow(ctx context.Context, rng string, row []string) error
}

// Result describes what a reconciliation did.
type Result struct {
	State      State
	Candidates []models.Employee
	Created    []string
	Upserted   []string
	Skipped    []string
}

type Flow struct {
	store       repository.EmployeeRepository
	files       FileAdapter
	remote      RemoteAdapter
	readRange   string
	appendRange string
	logger      *zap.Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithRemote enables the remote spreadsheet flows. Rows are read from
// readRange and appended to appendRange.
func WithRemote(remote RemoteAdapter, readRange, appendRange string) Option {
	return func(f *Flow) {
		f.remote = remote
		f.readRange = readRange
		f.appendRange = appendRange
	}
}

func NewFlow(store repository.EmployeeRepository, files FileAdapter, logger *zap.Logger, opts ...Option) *Flow {
	f := &Flow{store: store, files: files, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RemoteEnabled reports whether a remote spreadsheet is configured.
func (f *Flow) RemoteEnabled() bool {
	return f.remote != nil
}

// ImportFile imports the workbook at path with the insert-only policy.
func (f *Flow) ImportFile(ctx context.Context, path string) (*Result, error) {
	records, err := f.files.ImportFrom(path)
	if err != nil {
		var dupErr *common.DuplicateIDsError
		if errors.As(err, &dupErr) {
			f.logger.Warn("Workbook rejected, duplicate employee ids", zap.String("path", path), zap.Strings("duplicates", dupErr.IDs))
			return &Result{State: StateRejected}, err
		}
		return &Result{State: StateReceived}, err
	}
	return f.ImportRecords(ctx, records)
}

// ImportRecords applies the insert-only policy to candidates. Fields are
// trimmed before ids are compared.
func (f *Flow) ImportRecords(ctx context.Context, candidates []models.Employee) (*Result, error) {
	candidates = models.TrimEmployees(candidates)
	res := &Result{State: StateParsed, Candidates: candidates}

	if err := checkBatch(candidates); err != nil {
		res.State = StateRejected
		return res, err
	}
	res.State = StateDuplicateChecked

	existing, err := f.existingIDs(ctx, candidates)
	if err != nil {
		return res, err
	}
	res.State = StateExistenceChecked

	var fresh []models.Employee
	for _, c := range candidates {
		if existing[c.EmployeeID] {
			f.logger.Info("Employee already exists, skipping", zap.String("employee_id", c.EmployeeID))
			res.Skipped = append(res.Skipped, c.EmployeeID)
			continue
		}
		fresh = append(fresh, c)
	}

	err = f.store.InsertMany(ctx, fresh)
	switch {
	case err == nil:
		res.Created = append(res.Created, models.EmployeeIDs(fresh)...)
	case errors.Is(err, common.ErrConflict):
		// another import created some of these ids after the existence check
		f.logger.Warn("Batch insert lost a race, inserting one by one", zap.Error(err))
		err = f.createEach(ctx, fresh, res)
	default:
		return res, fmt.Errorf("insert employees: %w", err)
	}

	res.State = StateApplied
	if err != nil {
		return res, err
	}
	res.State = StateDone

	f.logger.Info("Employees imported",
		zap.Int("candidates", len(candidates)),
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (f *Flow) createEach(ctx context.Context, records []models.Employee, res *Result) error {
	var errs error
	for i := range records {
		e := records[i]
		err := f.store.Create(ctx, &e)
		switch {
		case err == nil:
			res.Created = append(res.Created, e.EmployeeID)
		case errors.Is(err, common.ErrConflict):
			f.logger.Info("Employee already exists, skipping", zap.String("employee_id", e.EmployeeID))
			res.Skipped = append(res.Skipped, e.EmployeeID)
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// ExportFile applies the filter-then-upsert policy to records and appends the
// accepted ones to the workbook at path. Fields are trimmed before ids are
// compared. Nothing is stored when the workbook cannot be saved at path.
func (f *Flow) ExportFile(ctx context.Context, path string, records []models.Employee) (*Result, error) {
	records = models.TrimEmployees(records)
	res := &Result{State: StateParsed, Candidates: records}

	if err := checkBatch(records); err != nil {
		res.State = StateRejected
		return res, err
	}
	if err := f.files.CheckTarget(path); err != nil {
		res.State = StateRejected
		return res, err
	}
	res.State = StateDuplicateChecked

	existing, err := f.existingIDs(ctx, records)
	if err != nil {
		return res, err
	}
	res.State = StateExistenceChecked

	var accepted []models.Employee
	for _, r := range records {
		if existing[r.EmployeeID] {
			res.Skipped = append(res.Skipped, r.EmployeeID)
			continue
		}
		accepted = append(accepted, r)
	}
	if len(accepted) == 0 {
		res.State = StateRejected
		return res, ErrNothingToDo
	}

	var errs error
	var written []models.Employee
	for i := range accepted {
		e := accepted[i]
		if err := f.store.Upsert(ctx, &e); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		res.Upserted = append(res.Upserted, e.EmployeeID)
		written = append(written, accepted[i])
	}

	if len(written) > 0 {
		if err := f.files.ExportTo(path, written); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("export workbook: %w", err))
		}
	}

	res.State = StateApplied
	if errs != nil {
		return res, errs
	}
	res.State = StateDone

	f.logger.Info("Employees exported",
		zap.String("path", path),
		zap.Int("upserted", len(res.Upserted)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// SyncRemote imports the remote spreadsheet rows with the insert-only policy.
// Rows are positional, in workbook column order; blank rows are ignored.
func (f *Flow) SyncRemote(ctx context.Context) (*Result, error) {
	if f.remote == nil {
		return &Result{State: StateReceived}, fmt.Errorf("remote spreadsheet is not configured: %w", common.ErrServiceUnavailable)
	}

	rows, err := f.remote.FetchRows(ctx, f.readRange)
	if err != nil {
		return &Result{State: StateReceived}, err
	}

	candidates := make([]models.Employee, 0, len(rows))
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		candidates = append(candidates, models.EmployeeFromFields(row))
	}
	if len(candidates) == 0 {
		return &Result{State: StateDone, Candidates: candidates}, nil
	}

	return f.ImportRecords(ctx, candidates)
}

// Create stores a single employee and, when a remote spreadsheet is
// configured, appends it there as well. Its fields are trimmed in place.
func (f *Flow) Create(ctx context.Context, employee *models.Employee) error {
	*employee = employee.Trimmed()
	if employee.EmployeeID == "" {
		return fmt.Errorf("employee id is required: %w", common.ErrValidation)
	}

	if err := f.store.Create(ctx, employee); err != nil {
		return err
	}

	if f.remote != nil {
		if err := f.remote.AppendRow(ctx, f.appendRange, employee.Fields()); err != nil {
			f.logger.Error("Employee stored but not appended to the spreadsheet",
				zap.String("employee_id", employee.EmployeeID), zap.Error(err))
			return fmt.Errorf("append employee %q: %w", employee.EmployeeID, err)
		}
	}

	f.logger.Info("Employee created", zap.String("employee_id", employee.EmployeeID))
	return nil
}

func (f *Flow) existingIDs(ctx context.Context, candidates []models.Employee) (map[string]bool, error) {
	found, err := f.store.FindManyByIDs(ctx, models.EmployeeIDs(candidates))
	if err != nil {
		f.logger.Error("Failed to look up existing employees", zap.Error(err))
		return nil, fmt.Errorf("look up existing employees: %w", err)
	}
	existing := make(map[string]bool, len(found))
	for _, e := range found {
		existing[e.EmployeeID] = true
	}
	return existing, nil
}

// checkBatch rejects batches with a missing or repeated employee id. Records
// are expected to be trimmed.
func checkBatch(records []models.Employee) error {
	for i, r := range records {
		if r.EmployeeID == "" {
			return fmt.Errorf("record %d has no employee id: %w", i+1, common.ErrValidation)
		}
	}
	if dups := common.FindDuplicateIDs(models.EmployeeIDs(records)); len(dups) > 0 {
		return &common.DuplicateIDsError{IDs: dups}
	}
	return nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
