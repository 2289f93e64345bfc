package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/middlewares"
	"bitbucket.org/mmdatafocus/expenses_backend/models"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const defaultPageLimit = 20
const maxPageLimit = 100

// respondExpenseError translates domain rejections into status codes: rule
// violations 422, authorization denials 403 except wrong-state which is a 409
// like a lost version race, duplicates and conflicts 409.
func respondExpenseError(c *gin.Context, err error) {
	if violations, ok := workflow.AsRuleViolations(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"violations": violations.Violations,
		})
		return
	}
	if denied, ok := workflow.AsAuthorizationDenied(err); ok {
		status := http.StatusForbidden
		if denied.Reason == workflow.DenyWrongState {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"reason": denied.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, workflow.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrNoManagerAssigned):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, workflow.ErrUnknownTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func expenseIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expense id"})
		return 0, false
	}
	return id, true
}

func createExpenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewExpense
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		expense, err := models.CreateExpense(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, expense)
	}
}

func getExpenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := expenseIdParam(c)
		if !ok {
			return
		}
		viewer := middlewares.CurrentUser(c)

		expense, err := models.GetScopedExpense(c.Request.Context(), viewer, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, expense)
	}
}

// listExpenseFilters reads the shared list/export query filters.
func listExpenseFilters(c *gin.Context) (*workflow.ExpenseState, *workflow.ExpenseCategory, *int, *models.DateOnly, *models.DateOnly, error) {
	var state *workflow.ExpenseState
	if v := c.Query("state"); v != "" {
		s := workflow.ExpenseState(v)
		if !s.IsValid() {
			return nil, nil, nil, nil, nil, errors.New("invalid state filter")
		}
		state = &s
	}

	var category *workflow.ExpenseCategory
	if v := c.Query("category"); v != "" {
		cat := workflow.ExpenseCategory(v)
		if !cat.IsValid() {
			return nil, nil, nil, nil, nil, errors.New("invalid category filter")
		}
		category = &cat
	}

	var employeeId *int
	if v := c.Query("employee_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, nil, nil, nil, nil, errors.New("invalid employee_id filter")
		}
		employeeId = &n
	}

	parseDate := func(name string) (*models.DateOnly, error) {
		v := c.Query(name)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, errors.New("invalid " + name + " filter")
		}
		d := models.DateOnly(t)
		return &d, nil
	}
	fromDate, err := parseDate("from_date")
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	toDate, err := parseDate("to_date")
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	return state, category, employeeId, fromDate, toDate, nil
}

func listExpensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middlewares.CurrentUser(c)

		limit := defaultPageLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxPageLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		var after *string
		if v := c.Query("after"); v != "" {
			after = &v
		}

		state, category, employeeId, fromDate, toDate, err := listExpenseFilters(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		connection, err := models.PaginateExpense(c.Request.Context(), viewer, limit, after,
			state, category, employeeId, fromDate, toDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func updateExpenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := expenseIdParam(c)
		if !ok {
			return
		}

		var input models.NewExpense
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		expense, err := models.UpdateExpense(c.Request.Context(), id, &input)
		if err != nil {
			respondExpenseError(c, err)
			return
		}
		c.JSON(http.StatusOK, expense)
	}
}

func deleteExpenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := expenseIdParam(c)
		if !ok {
			return
		}
		expense, err := models.DeleteExpense(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, expense)
	}
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

// transitionHandler serves one workflow action. The expense must be inside
// the caller's visibility scope before the engine sees the request, so
// requests against invisible expenses read as 404 rather than 403.
func transitionHandler(action workflow.TransitionAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := expenseIdParam(c)
		if !ok {
			return
		}
		viewer := middlewares.CurrentUser(c)

		if _, err := models.GetScopedExpense(c.Request.Context(), viewer, id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		var req transitionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		idempotencyKey := c.GetHeader("Idempotency-Key")

		expense, err := models.ApplyTransition(c.Request.Context(), viewer, id, action,
			workflow.TransitionParams{Reason: req.Reason}, idempotencyKey)
		if err != nil {
			respondExpenseError(c, err)
			return
		}
		c.JSON(http.StatusOK, expense)
	}
}

func pendingApprovalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middlewares.CurrentUser(c)
		expenses, err := models.PendingApproval(c.Request.Context(), viewer)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"expenses": expenses})
	}
}

func expenseStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middlewares.CurrentUser(c)
		stats, err := models.GetExpenseStats(c.Request.Context(), viewer)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func expenseHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := expenseIdParam(c)
		if !ok {
			return
		}
		viewer := middlewares.CurrentUser(c)

		entries, err := models.ListExpenseHistory(c.Request.Context(), viewer, id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": entries})
	}
}

func exportExpensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middlewares.CurrentUser(c)

		state, category, employeeId, fromDate, toDate, err := listExpenseFilters(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f, err := models.ExportExpensesXlsx(c.Request.Context(), viewer,
			state, category, employeeId, fromDate, toDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		filename := "expenses_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+filename)
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
		}
	}
}
