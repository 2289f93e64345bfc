package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/xuri/excelize/v2"
)

// ExportExpensesXlsx renders the viewer's visible expenses as a spreadsheet.
// The filters mirror the list endpoint so an export always matches what the
// viewer sees on screen.
func ExportExpensesXlsx(ctx context.Context,
	viewer *User,
	state *workflow.ExpenseState,
	category *workflow.ExpenseCategory,
	employeeId *int,
	fromDate *DateOnly,
	toDate *DateOnly,
) (*excelize.File, error) {

	db := config.GetDB()
	dbCtx := scopedExpenseQuery(db.WithContext(ctx), viewer).Preload("Employee")

	if state != nil && *state != "" {
		dbCtx = dbCtx.Where("state = ?", *state)
	}
	if category != nil && *category != "" {
		dbCtx = dbCtx.Where("category = ?", *category)
	}
	if employeeId != nil && *employeeId > 0 {
		dbCtx = dbCtx.Where("employee_id = ?", *employeeId)
	}
	if fromDate != nil {
		dbCtx = dbCtx.Where("expense_date >= ?", fromDate.Time())
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("expense_date <= ?", toDate.Time())
	}

	var expenses []*Expense
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&expenses).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "Id")
	f.SetCellValue(sheet, "B1", "Employee")
	f.SetCellValue(sheet, "C1", "Department")
	f.SetCellValue(sheet, "D1", "State")
	f.SetCellValue(sheet, "E1", "Amount")
	f.SetCellValue(sheet, "F1", "Currency")
	f.SetCellValue(sheet, "G1", "Category")
	f.SetCellValue(sheet, "H1", "Vendor")
	f.SetCellValue(sheet, "I1", "ExpenseDate")
	f.SetCellValue(sheet, "J1", "SubmittedAt")
	f.SetCellValue(sheet, "K1", "ApprovedAt")
	f.SetCellValue(sheet, "L1", "ProcessedAt")
	f.SetCellValue(sheet, "M1", "CreatedAt")

	// Add data
	for i, e := range expenses {
		row := fmt.Sprint(i + 2)
		employeeName := ""
		if e.Employee != nil {
			employeeName = e.Employee.Name
		}
		f.SetCellValue(sheet, "A"+row, e.ID)
		f.SetCellValue(sheet, "B"+row, employeeName)
		f.SetCellValue(sheet, "C"+row, e.Department)
		f.SetCellValue(sheet, "D"+row, string(e.State))
		f.SetCellValue(sheet, "E"+row, e.Amount)
		f.SetCellValue(sheet, "F"+row, e.Currency)
		f.SetCellValue(sheet, "G"+row, string(e.Category))
		f.SetCellValue(sheet, "H"+row, e.VendorId)
		f.SetCellValue(sheet, "I"+row, e.ExpenseDate.Format("2006-01-02"))
		f.SetCellValue(sheet, "J"+row, formatExportTime(e.SubmittedAt))
		f.SetCellValue(sheet, "K"+row, formatExportTime(e.ApprovedAt))
		f.SetCellValue(sheet, "L"+row, formatExportTime(e.ProcessedAt))
		f.SetCellValue(sheet, "M"+row, e.CreatedAt.Format(time.RFC3339))
	}

	return f, nil
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
