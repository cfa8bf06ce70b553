package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
	"employee-manager/internal/repository"
	"employee-manager/internal/workbook"
)

func employee(id, name string) models.Employee {
	return models.Employee{
		EmployeeID:     id,
		Name:           name,
		Role:           "Engineer",
		EmploymentType: "Full-time",
		Status:         "Active",
		CheckIn:        "09:00",
		CheckOut:       "17:00",
		WorkType:       "Remote",
	}
}

func newStore(t *testing.T) repository.EmployeeRepository {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.NewDB("sqlite", ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, "sqlite", logger))
	return repository.NewEmployeeRepository(db, logger)
}

func storedIDs(t *testing.T, store repository.EmployeeRepository) []string {
	t.Helper()
	all, err := store.List(context.Background())
	require.NoError(t, err)
	return models.EmployeeIDs(all)
}

func seed(t *testing.T, store repository.EmployeeRepository, employees ...models.Employee) {
	t.Helper()
	for i := range employees {
		require.NoError(t, store.Create(context.Background(), &employees[i]))
	}
}

type fakeRemote struct {
	rows      [][]string
	fetchErr  error
	appendErr error
	appended  [][]string
	ranges    []string
}

func (r *fakeRemote) FetchRows(_ context.Context, rng string) ([][]string, error) {
	r.ranges = append(r.ranges, rng)
	return r.rows, r.fetchErr
}

func (r *fakeRemote) AppendRow(_ context.Context, rng string, row []string) error {
	r.ranges = append(r.ranges, rng)
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, row)
	return nil
}

func TestImportFile_RejectsDuplicateIDs(t *testing.T) {
	store := newStore(t)
	files := workbook.New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "in.xlsx")
	// the exporter does not deduplicate, so this yields a file with E1 twice
	require.NoError(t, files.ExportTo(path, []models.Employee{employee("E1", "Ann"), employee("E2", "Bo"), employee("E1", "Ann")}))

	flow := NewFlow(store, files, zap.NewNop())
	res, err := flow.ImportFile(context.Background(), path)

	var dupErr *common.DuplicateIDsError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"E1"}, dupErr.IDs)
	assert.Equal(t, StateRejected, res.State)
	assert.Empty(t, storedIDs(t, store), "a rejected import must not write anything")
}

func TestImportFile_InsertOnlySkipsExisting(t *testing.T) {
	store := newStore(t)
	seed(t, store, employee("E1", "Original"))

	files := workbook.New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "in.xlsx")
	require.NoError(t, files.ExportTo(path, []models.Employee{employee("E1", "Changed"), employee("E2", "Bo")}))

	res, err := NewFlow(store, files, zap.NewNop()).ImportFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"E2"}, res.Created)
	assert.Equal(t, []string{"E1"}, res.Skipped)
	assert.Len(t, res.Candidates, 2)

	e1, err := store.FindByID(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "Original", e1.Name, "insert-only never overwrites")
	assert.Equal(t, []string{"E1", "E2"}, storedIDs(t, store))
}

func TestImportFile_MissingFile(t *testing.T) {
	flow := NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop())

	_, err := flow.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestImportRecords_ReportsEveryDuplicate(t *testing.T) {
	flow := NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop())

	res, err := flow.ImportRecords(context.Background(), []models.Employee{
		employee("E1", "a"), employee("E2", "b"), employee("E1", "c"), employee("E3", "d"), employee("E2", "e"),
	})

	var dupErr *common.DuplicateIDsError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"E1", "E2"}, dupErr.IDs)
	assert.Equal(t, StateRejected, res.State)
}

func TestImportRecords_RejectsMissingID(t *testing.T) {
	flow := NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop())

	_, err := flow.ImportRecords(context.Background(), []models.Employee{employee("E1", "a"), employee(" ", "b")})
	assert.ErrorIs(t, err, common.ErrValidation)
}

// racingStore creates raceID right before the batch insert, as a concurrent
// import would.
type racingStore struct {
	repository.EmployeeRepository
	raceID string
}

func (s *racingStore) InsertMany(ctx context.Context, employees []models.Employee) error {
	e := employee(s.raceID, "winner")
	if err := s.EmployeeRepository.Create(ctx, &e); err != nil {
		return err
	}
	return s.EmployeeRepository.InsertMany(ctx, employees)
}

func TestImportRecords_ConcurrentInsertFallsBackToCreate(t *testing.T) {
	store := &racingStore{EmployeeRepository: newStore(t), raceID: "E2"}
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop())

	res, err := flow.ImportRecords(context.Background(), []models.Employee{employee("E1", "a"), employee("E2", "b"), employee("E3", "c")})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"E1", "E3"}, res.Created)
	assert.Equal(t, []string{"E2"}, res.Skipped)

	e2, err := store.FindByID(context.Background(), "E2")
	require.NoError(t, err)
	assert.Equal(t, "winner", e2.Name)
}

func TestExportFile_FilterThenUpsert(t *testing.T) {
	store := newStore(t)
	seed(t, store, employee("E1", "Original"))

	files := workbook.New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, files.ExportTo(path, []models.Employee{employee("E0", "Already in file")}))

	flow := NewFlow(store, files, zap.NewNop())
	res, err := flow.ExportFile(context.Background(), path, []models.Employee{employee("E1", "Changed"), employee("E2", "Bo")})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"E2"}, res.Upserted)
	assert.Equal(t, []string{"E1"}, res.Skipped)

	e1, err := store.FindByID(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "Original", e1.Name)

	inFile, err := files.ImportFrom(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"E0", "E2"}, models.EmployeeIDs(inFile))
}

func TestExportFile_NothingToDo(t *testing.T) {
	store := newStore(t)
	seed(t, store, employee("E1", "a"), employee("E2", "b"))
	path := filepath.Join(t.TempDir(), "out.xlsx")

	res, err := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop()).
		ExportFile(context.Background(), path, []models.Employee{employee("E1", "a"), employee("E2", "b")})

	assert.ErrorIs(t, err, ErrNothingToDo)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, StateRejected, res.State)
	assert.NoFileExists(t, path)
}

func TestExportFile_RejectsDuplicates(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	res, err := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop()).
		ExportFile(context.Background(), path, []models.Employee{employee("E1", "a"), employee("E1", "b")})

	var dupErr *common.DuplicateIDsError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"E1"}, dupErr.IDs)
	assert.Equal(t, StateRejected, res.State)
	assert.Empty(t, storedIDs(t, store))
	assert.NoFileExists(t, path)
}

// failingStore fails Upsert for one employee id.
type failingStore struct {
	repository.EmployeeRepository
	failID string
}

func (s *failingStore) Upsert(ctx context.Context, e *models.Employee) error {
	if e.EmployeeID == s.failID {
		return errors.New("disk full")
	}
	return s.EmployeeRepository.Upsert(ctx, e)
}

func TestExportFile_PartialFailureIsReported(t *testing.T) {
	store := &failingStore{EmployeeRepository: newStore(t), failID: "E2"}
	files := workbook.New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "out.xlsx")

	res, err := NewFlow(store, files, zap.NewNop()).
		ExportFile(context.Background(), path, []models.Employee{employee("E1", "a"), employee("E2", "b"), employee("E3", "c")})

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, StateApplied, res.State)
	assert.Equal(t, []string{"E1", "E3"}, res.Upserted)

	ids := storedIDs(t, store)
	sort.Strings(ids)
	assert.Equal(t, []string{"E1", "E3"}, ids)

	inFile, err := files.ImportFrom(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E3"}, models.EmployeeIDs(inFile))
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newStore(t)
	e := employee("E1", "Ann")

	require.NoError(t, store.Upsert(context.Background(), &e))
	first, err := store.FindByID(context.Background(), "E1")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(context.Background(), &e))
	second, err := store.FindByID(context.Background(), "E1")
	require.NoError(t, err)

	assert.Equal(t, first.Fields(), second.Fields())
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"E1"}, storedIDs(t, store))
}

func TestSyncRemote(t *testing.T) {
	store := newStore(t)
	seed(t, store, employee("E1", "Ann"))
	remote := &fakeRemote{rows: [][]string{
		employee("E1", "Ann").Fields(),
		{"", "  "},
		{" E2 ", "Bo", "Designer"},
	}}

	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(remote, "Sheet1!A2:H", "Sheet1!A:H"))
	res, err := flow.SyncRemote(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Sheet1!A2:H"}, remote.ranges)
	assert.Equal(t, []string{"E1", "E2"}, models.EmployeeIDs(res.Candidates))
	assert.Equal(t, []string{"E2"}, res.Created)
	assert.Equal(t, []string{"E1"}, res.Skipped)

	e2, err := store.FindByID(context.Background(), "E2")
	require.NoError(t, err)
	assert.Equal(t, "Designer", e2.Role)
	assert.Empty(t, e2.WorkType)
}

func TestSyncRemote_EmptySheet(t *testing.T) {
	flow := NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(&fakeRemote{}, "r", "a"))

	res, err := flow.SyncRemote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Candidates)
}

func TestSyncRemote_Errors(t *testing.T) {
	_, err := NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop()).SyncRemote(context.Background())
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)

	remote := &fakeRemote{fetchErr: common.ErrUnauthorized}
	_, err = NewFlow(newStore(t), workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(remote, "r", "a")).SyncRemote(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestCreate(t *testing.T) {
	store := newStore(t)
	remote := &fakeRemote{}
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(remote, "Sheet1!A2:H", "Sheet1!A:H"))
	ctx := context.Background()

	e := employee("E1", "Ann")
	require.NoError(t, flow.Create(ctx, &e))
	assert.Equal(t, [][]string{e.Fields()}, remote.appended)
	assert.Equal(t, []string{"Sheet1!A:H"}, remote.ranges)

	again := employee("E1", "Other")
	assert.ErrorIs(t, flow.Create(ctx, &again), common.ErrConflict)
	assert.Len(t, remote.appended, 1, "a conflicting create is not appended")

	blank := employee("", "Nobody")
	assert.ErrorIs(t, flow.Create(ctx, &blank), common.ErrValidation)
}

func TestCreate_WithoutRemote(t *testing.T) {
	store := newStore(t)
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop())

	e := employee("E5", "Eve")
	require.NoError(t, flow.Create(context.Background(), &e))
	assert.False(t, flow.RemoteEnabled())
	assert.Equal(t, []string{"E5"}, storedIDs(t, store))
}

func TestCreate_AppendFailure(t *testing.T) {
	store := newStore(t)
	remote := &fakeRemote{appendErr: common.ErrServiceUnavailable}
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(remote, "r", "a"))

	e := employee("E1", "Ann")
	err := flow.Create(context.Background(), &e)
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
	assert.Equal(t, []string{"E1"}, storedIDs(t, store))
}

func TestExportFile_PaddedIDsAreDuplicates(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	res, err := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop()).
		ExportFile(context.Background(), path, []models.Employee{employee("E1", "Ada"), employee(" E1", " Grace ")})

	var dupErr *common.DuplicateIDsError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"E1"}, dupErr.IDs)
	assert.Equal(t, StateRejected, res.State)
	assert.Empty(t, storedIDs(t, store))
	assert.NoFileExists(t, path)
}

func TestExportFile_ThenImportFileRoundTrip(t *testing.T) {
	store := newStore(t)
	files := workbook.New(zap.NewNop())
	path := filepath.Join(t.TempDir(), "out.xlsx")
	flow := NewFlow(store, files, zap.NewNop())

	padded := employee(" E1 ", "  Ada Lovelace ")
	padded.CheckIn = " 09:00"
	_, err := flow.ExportFile(context.Background(), path, []models.Employee{padded, employee("E2", "Bo")})
	require.NoError(t, err)

	stored, err := store.FindByID(context.Background(), "E1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, employee("E1", "Ada Lovelace").Fields(), stored.Fields())

	inFile, err := files.ImportFrom(path)
	require.NoError(t, err)
	assert.Equal(t, []models.Employee{employee("E1", "Ada Lovelace"), employee("E2", "Bo")}, inFile)

	res, err := flow.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"E1", "E2"}, res.Skipped)
}

func TestExportFile_MissingDirectoryStoresNothing(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "no", "such", "out.xlsx")
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop())

	res, err := flow.ExportFile(context.Background(), path, []models.Employee{employee("E1", "Ann")})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.NotErrorIs(t, err, ErrNothingToDo)
	assert.Equal(t, StateRejected, res.State)
	assert.Empty(t, storedIDs(t, store))

	// once the directory exists the same request goes through
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	res, err = flow.ExportFile(context.Background(), path, []models.Employee{employee("E1", "Ann")})
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, res.Upserted)
	assert.FileExists(t, path)
}

func TestCreate_TrimsBeforeStoringAndAppending(t *testing.T) {
	store := newStore(t)
	remote := &fakeRemote{}
	flow := NewFlow(store, workbook.New(zap.NewNop()), zap.NewNop(), WithRemote(remote, "r", "a"))
	ctx := context.Background()

	e := employee(" E5", " Eve ")
	require.NoError(t, flow.Create(ctx, &e))
	assert.Equal(t, "E5", e.EmployeeID)
	assert.Equal(t, [][]string{employee("E5", "Eve").Fields()}, remote.appended)

	padded := employee("E5 ", "Eve")
	assert.ErrorIs(t, flow.Create(ctx, &padded), common.ErrConflict)

	blank := employee("   ", "Nobody")
	assert.ErrorIs(t, flow.Create(ctx, &blank), common.ErrValidation)

	// syncing the appended row back finds the stored record
	remote.rows = remote.appended
	res, err := flow.SyncRemote(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"E5"}, res.Skipped)
	assert.Equal(t, []string{"E5"}, storedIDs(t, store))
}
