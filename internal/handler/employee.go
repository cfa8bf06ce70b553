package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
	"employee-manager/internal/reconcile"
	"employee-manager/internal/repository"
)

// EmployeeFlow is the reconciliation surface the employee handlers use.
type EmployeeFlow interface {
	ImportFile(ctx context.Context, path string) (*reconcile.Result, error)
	ExportFile(ctx context.Context, path string, records []models.Employee) (*reconcile.Result, error)
	SyncRemote(ctx context.Context) (*reconcile.Result, error)
	Create(ctx context.Context, employee *models.Employee) error
	RemoteEnabled() bool
}

type EmployeeHandler struct {
	flow    EmployeeFlow
	store   repository.EmployeeRepository
	baseDir string
	logger  *zap.Logger
}

// NewEmployeeHandler creates the employee handlers. A non-empty baseDir
// confines the workbook paths named in requests to that directory.
func NewEmployeeHandler(flow EmployeeFlow, store repository.EmployeeRepository, baseDir string, logger *zap.Logger) *EmployeeHandler {
	return &EmployeeHandler{flow: flow, store: store, baseDir: baseDir, logger: logger}
}

type ReadExcelRequest struct {
	FilePath string `json:"filePath" binding:"required"`
}

type WriteExcelRequest struct {
	FilePath     string            `json:"filePath" binding:"required"`
	EmployeeData []models.Employee `json:"employeeData" binding:"required,dive"`
}

// List serves GET /api/employees. With source=sheet (the default when a
// spreadsheet is configured) the sheet is synced into the store first and
// its rows are returned; source=store lists the store.
func (h *EmployeeHandler) List(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		source = "store"
		if h.flow.RemoteEnabled() {
			source = "sheet"
		}
	}

	switch source {
	case "sheet":
		res, err := h.flow.SyncRemote(c.Request.Context())
		if err != nil {
			respondError(c, h.logger, err, "Failed to sync employees from the spreadsheet")
			return
		}
		if len(res.Candidates) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "No data found."})
			return
		}
		c.JSON(http.StatusOK, res.Candidates)
	case "store":
		employees, err := h.store.List(c.Request.Context())
		if err != nil {
			respondError(c, h.logger, err, "Failed to list employees")
			return
		}
		if employees == nil {
			employees = []models.Employee{}
		}
		c.JSON(http.StatusOK, employees)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be sheet or store"})
	}
}

func (h *EmployeeHandler) Get(c *gin.Context) {
	employee, err := h.store.FindByID(c.Request.Context(), c.Param("employeeId"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get employee")
		return
	}
	if employee == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
		return
	}
	c.JSON(http.StatusOK, employee)
}

func (h *EmployeeHandler) Create(c *gin.Context) {
	var employee models.Employee
	if err := c.ShouldBindJSON(&employee); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.flow.Create(c.Request.Context(), &employee); err != nil {
		respondError(c, h.logger, err, "Failed to create employee")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Employee created.",
		"employee": employee,
	})
}

func (h *EmployeeHandler) ReadExcel(c *gin.Context) {
	var req ReadExcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path, err := h.resolvePath(req.FilePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.flow.ImportFile(c.Request.Context(), path)
	if err != nil {
		var dupErr *common.DuplicateIDsError
		if errors.As(err, &dupErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"msg":        "Duplicate employee IDs found in the Excel sheet",
				"duplicates": dupErr.IDs,
			})
			return
		}
		respondError(c, h.logger, err, "Error reading Excel file")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"msg":     "Data inserted successfully",
		"data":    res.Candidates,
		"created": nonNil(res.Created),
		"skipped": nonNil(res.Skipped),
	})
}

func (h *EmployeeHandler) WriteExcel(c *gin.Context) {
	var req WriteExcelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path, err := h.resolvePath(req.FilePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.flow.ExportFile(c.Request.Context(), path, req.EmployeeData)
	if err != nil {
		var dupErr *common.DuplicateIDsError
		switch {
		case errors.As(err, &dupErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"msg":        "Duplicate employee IDs found in the provided data",
				"duplicates": dupErr.IDs,
			})
		case errors.Is(err, reconcile.ErrNothingToDo):
			c.JSON(http.StatusBadRequest, gin.H{"msg": "All employee IDs already exist in the database."})
		default:
			respondError(c, h.logger, err, "Error writing to Excel file")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"msg":      "Data written to Excel file successfully.",
		"upserted": nonNil(res.Upserted),
		"skipped":  nonNil(res.Skipped),
	})
}

// resolvePath confines p to the configured base directory.
func (h *EmployeeHandler) resolvePath(p string) (string, error) {
	if h.baseDir == "" {
		return p, nil
	}
	if filepath.IsAbs(p) {
		return "", errors.New("filePath must be relative")
	}
	full := filepath.Join(h.baseDir, p)
	rel, err := filepath.Rel(h.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("filePath escapes the data directory")
	}
	return full, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
