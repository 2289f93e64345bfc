package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DateOnly is a calendar date in request JSON ("2006-01-02"). RFC3339
// timestamps are accepted too and truncated by the DATE column.
type DateOnly time.Time

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(d).Format("2006-01-02"))), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	str, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.New("date must be a string")
	}
	parsed, err := time.Parse("2006-01-02", str)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, str)
		if err != nil {
			return errors.New("error parsing date")
		}
	}
	*d = DateOnly(parsed.UTC())
	return nil
}

func (d DateOnly) Time() time.Time { return time.Time(d) }

// PaymentDetailsJSON stores the generated payment record as a JSON column and
// renders it as a nested object in responses.
type PaymentDetailsJSON workflow.PaymentDetails

func (p *PaymentDetailsJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("unsupported payment details column type %T", value)
}

func (p PaymentDetailsJSON) Value() (driver.Value, error) {
	return json.Marshal(p)
}

type Expense struct {
	ID         int   `gorm:"primary_key" json:"id"`
	EmployeeId int   `gorm:"not null;index;index:idx_expense_employee_state,priority:1" json:"employee_id"`
	Employee   *User `gorm:"foreignKey:EmployeeId" json:"employee,omitempty"`

	State       workflow.ExpenseState    `gorm:"type:enum('draft','submitted','approved','rejected','paid','compliance_hold');not null;default:'draft';index;index:idx_expense_employee_state,priority:2" json:"state"`
	Amount      decimal.Decimal          `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency    string                   `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Category    workflow.ExpenseCategory `gorm:"type:enum('travel','meals','accommodation','entertainment','supplies','capital','other');not null" json:"category"`
	VendorId    string                   `gorm:"size:100;not null;index" json:"vendor_id"`
	VendorName  string                   `gorm:"size:255" json:"vendor_name"`
	Description string                   `gorm:"type:text;not null" json:"description"`
	Department  string                   `gorm:"size:100;not null" json:"department"`
	ExpenseDate time.Time                `gorm:"type:date;not null;index" json:"expense_date"`

	// Optimistic concurrency token, +1 on every committed update or
	// transition. Stale writers lose the version check and roll back.
	Version int `gorm:"not null;default:1" json:"version"`

	SubmittedAt      *time.Time `json:"submitted_at"`
	ManagerId        *int       `gorm:"index" json:"manager_id"`
	Manager          *User      `gorm:"foreignKey:ManagerId" json:"manager,omitempty"`
	FinanceUserId    *int       `json:"finance_user_id"`
	FinanceUser      *User      `gorm:"foreignKey:FinanceUserId" json:"finance_user,omitempty"`
	ComplianceUserId *int       `json:"compliance_user_id"`
	ComplianceUser   *User      `gorm:"foreignKey:ComplianceUserId" json:"compliance_user,omitempty"`

	ApprovedAt     *time.Time `json:"approved_at"`
	ApprovedById   *int       `gorm:"index" json:"approved_by_id"`
	OverrideReason *string    `gorm:"type:text" json:"override_reason"`

	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason *string    `gorm:"type:text" json:"rejection_reason"`

	ProcessedAt    *time.Time          `json:"processed_at"`
	ProcessedById  *int                `json:"processed_by_id"`
	PaymentDetails *PaymentDetailsJSON `gorm:"type:json" json:"payment_details"`

	FlaggedAt   *time.Time `json:"flagged_at"`
	FlaggedById *int       `json:"flagged_by_id"`
	FlagReason  *string    `gorm:"type:text" json:"flag_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	Amount      decimal.Decimal          `json:"amount" binding:"required"`
	Currency    string                   `json:"currency"`
	Category    workflow.ExpenseCategory `json:"category" binding:"required"`
	VendorId    string                   `json:"vendor_id" binding:"required"`
	VendorName  string                   `json:"vendor_name"`
	Description string                   `json:"description" binding:"required"`
	Department  string                   `json:"department"`
	ExpenseDate DateOnly                 `json:"expense_date" binding:"required"`
}

type ExpensesEdge Edge[Expense]

func (obj Expense) GetId() int {
	return obj.ID
}

type ExpensesConnection struct {
	PageInfo *PageInfo       `json:"pageInfo"`
	Edges    []*ExpensesEdge `json:"edges"`
}

// implements CompositeCursor
func (e Expense) GetCursor() string {
	return e.CreatedAt.String()
}

func (e *Expense) PrepareGive() {
	if e.Employee != nil {
		e.Employee.PrepareGive()
	}
	if e.Manager != nil {
		e.Manager.PrepareGive()
	}
	if e.FinanceUser != nil {
		e.FinanceUser.PrepareGive()
	}
	if e.ComplianceUser != nil {
		e.ComplianceUser.PrepareGive()
	}
}

// AsSnapshot converts the stored row into the engine's read-only view.
func (e *Expense) AsSnapshot() *workflow.ExpenseSnapshot {
	return &workflow.ExpenseSnapshot{
		ID:               e.ID,
		EmployeeId:       e.EmployeeId,
		State:            e.State,
		Amount:           e.Amount,
		Currency:         e.Currency,
		Category:         e.Category,
		Vendor:           e.VendorId,
		Description:      e.Description,
		ExpenseDate:      e.ExpenseDate,
		CreatedAt:        e.CreatedAt,
		SubmittedAt:      e.SubmittedAt,
		Version:          e.Version,
		ManagerId:        utils.DereferencePtr(e.ManagerId),
		FinanceUserId:    utils.DereferencePtr(e.FinanceUserId),
		ComplianceUserId: utils.DereferencePtr(e.ComplianceUserId),
		Department:       e.Department,
	}
}

// CheckChangeAllowed implements utils.ModelChangeLocker. Drafts are the only
// editable expenses; after submission content changes only through
// transitions.
func (e Expense) CheckChangeAllowed(ctx context.Context) error {
	if e.State != workflow.StateDraft {
		return fmt.Errorf("expense in state %s can no longer be edited", e.State)
	}
	return nil
}

// validate input for both create & update
func (input *NewExpense) validate() error {
	if !input.Category.IsValid() {
		return errors.New("invalid expense category")
	}
	if input.ExpenseDate.Time().IsZero() {
		return errors.New("expense date is required")
	}
	if currency := strings.TrimSpace(input.Currency); currency != "" && len(currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	return nil
}

func CreateExpense(ctx context.Context, input *NewExpense) (*Expense, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	employee, err := GetUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	department := input.Department
	if department == "" {
		department = employee.Department
	}

	expense := Expense{
		EmployeeId:  userId,
		State:       workflow.StateDraft,
		Amount:      input.Amount,
		Currency:    currency,
		Category:    input.Category,
		VendorId:    input.VendorId,
		VendorName:  input.VendorName,
		Description: input.Description,
		Department:  department,
		ExpenseDate: input.ExpenseDate.Time(),
		Version:     1,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	if err := tx.Create(&expense).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// the owner may view and edit the draft from creation on
	grants := []workflow.CapabilityGrant{
		{UserId: userId, Capability: workflow.CapabilityViewExpense},
		{UserId: userId, Capability: workflow.CapabilityChangeExpense},
	}
	if err := SaveHistoryCreate(ctx, tx, &expense, "Expense created in draft.", grants); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	expense.Employee = employee
	return &expense, nil
}

func UpdateExpense(ctx context.Context, id int, input *NewExpense) (*Expense, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	// owned draft only
	beforeUpdate, err := utils.FetchModelForChange[Expense](ctx, userId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	department := input.Department
	if department == "" {
		department = beforeUpdate.Department
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	res := tx.Model(&Expense{}).
		Where("id = ? AND version = ?", id, beforeUpdate.Version).
		Updates(map[string]interface{}{
			"Amount":      input.Amount,
			"Currency":    currency,
			"Category":    input.Category,
			"VendorId":    input.VendorId,
			"VendorName":  input.VendorName,
			"Description": input.Description,
			"Department":  department,
			"ExpenseDate": input.ExpenseDate.Time(),
			"Version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, workflow.ErrConcurrentModification
	}

	var afterUpdate Expense
	if err := tx.First(&afterUpdate, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := SaveHistoryUpdate(ctx, tx, id, beforeUpdate, &afterUpdate, "Expense draft updated."); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &afterUpdate, nil
}

// DeleteExpense removes the expense with its receipts and audit trail.
// Administrative use only; the handler guards the admin flag.
func DeleteExpense(ctx context.Context, id int) (*Expense, error) {

	result, err := utils.FetchSingleModel[Expense](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	var receipts []Receipt
	if err := db.WithContext(ctx).Where("expense_id = ?", id).Find(&receipts).Error; err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()

	if err := tx.Where("expense_id = ?", id).Delete(&Receipt{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("expense_id = ?", id).Delete(&History{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("expense_id = ?", id).Delete(&IdempotencyKey{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Where("expense_id = ?", id).Delete(&PaymentOutboxRecord{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(&Expense{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// Best-effort file cleanup after commit.
	for _, receipt := range receipts {
		_ = utils.DeleteObjectFromGCS(ctx, receipt.StorageKey)
		if receipt.ThumbnailKey != "" {
			_ = utils.DeleteObjectFromGCS(ctx, receipt.ThumbnailKey)
		}
	}

	return result, nil
}

// scopedExpenseQuery narrows a query to the rows the viewer may see.
// Employees see their own; managers also their direct reports'; finance its
// own plus everything approved or paid; compliance, vp, cfo and admins all.
func scopedExpenseQuery(dbCtx *gorm.DB, viewer *User) *gorm.DB {
	if viewer.IsAdmin != nil && *viewer.IsAdmin {
		return dbCtx
	}
	switch viewer.Role {
	case workflow.RoleManager:
		reports := config.GetDB().Model(&User{}).Select("id").Where("manager_id = ?", viewer.ID)
		return dbCtx.Where("employee_id = ? OR employee_id IN (?)", viewer.ID, reports)
	case workflow.RoleFinance:
		return dbCtx.Where("employee_id = ? OR state IN ?", viewer.ID,
			[]workflow.ExpenseState{workflow.StateApproved, workflow.StatePaid})
	case workflow.RoleCompliance, workflow.RoleVP, workflow.RoleCFO:
		return dbCtx
	}
	return dbCtx.Where("employee_id = ?", viewer.ID)
}

// GetScopedExpense fetches one expense within the viewer's visibility scope.
// Out-of-scope rows read as not found, never as forbidden.
func GetScopedExpense(ctx context.Context, viewer *User, id int) (*Expense, error) {

	db := config.GetDB()
	dbCtx := scopedExpenseQuery(db.WithContext(ctx), viewer).
		Preload("Employee").Preload("Manager").Preload("FinanceUser").Preload("ComplianceUser")

	var result Expense
	if err := dbCtx.First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	result.PrepareGive()
	return &result, nil
}

func PaginateExpense(ctx context.Context,
	viewer *User,
	limit int,
	after *string,
	state *workflow.ExpenseState,
	category *workflow.ExpenseCategory,
	employeeId *int,
	fromDate *DateOnly,
	toDate *DateOnly,
) (*ExpensesConnection, error) {

	db := config.GetDB()
	dbCtx := scopedExpenseQuery(db.WithContext(ctx), viewer)

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

	// newest first
	edges, pageInfo, err := FetchPageCompositeCursor[Expense](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	var expensesConnection ExpensesConnection
	expensesConnection.PageInfo = pageInfo
	for _, edge := range edges {
		expensesEdge := ExpensesEdge(edge)
		expensesEdge.Node.PrepareGive()
		expensesConnection.Edges = append(expensesConnection.Edges, &expensesEdge)
	}

	return &expensesConnection, err
}

// PendingApproval returns the expenses waiting on the viewer: managers see
// their assigned submitted expenses, finance the approved queue, compliance
// the hold queue, vp and cfo both open queues.
func PendingApproval(ctx context.Context, viewer *User) ([]*Expense, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Employee")

	switch viewer.Role {
	case workflow.RoleManager:
		dbCtx = dbCtx.Where("state = ? AND manager_id = ?", workflow.StateSubmitted, viewer.ID)
	case workflow.RoleFinance:
		dbCtx = dbCtx.Where("state = ?", workflow.StateApproved)
	case workflow.RoleCompliance:
		dbCtx = dbCtx.Where("state = ?", workflow.StateComplianceHold)
	case workflow.RoleVP, workflow.RoleCFO:
		dbCtx = dbCtx.Where("state IN ?",
			[]workflow.ExpenseState{workflow.StateSubmitted, workflow.StateComplianceHold})
	default:
		return []*Expense{}, nil
	}

	var results []*Expense
	if err := dbCtx.Order("submitted_at, id").Find(&results).Error; err != nil {
		return nil, err
	}
	for _, expense := range results {
		expense.PrepareGive()
	}
	return results, nil
}

type ExpenseStateStat struct {
	State       workflow.ExpenseState `json:"state"`
	Count       int64                 `json:"count"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
}

type ExpenseCategoryStat struct {
	Category    workflow.ExpenseCategory `json:"category"`
	Count       int64                    `json:"count"`
	TotalAmount decimal.Decimal          `json:"total_amount"`
}

type ExpenseStats struct {
	Count       int64                 `json:"count"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	ByState     []ExpenseStateStat    `json:"by_state"`
	ByCategory  []ExpenseCategoryStat `json:"by_category"`
}

/*
caches:
	ExpenseStats:$userId
*/

// GetExpenseStats aggregates the viewer's visible expenses by state and
// category. Results are cached for a minute per viewer; a dashboard figure
// tolerates that much staleness.
func GetExpenseStats(ctx context.Context, viewer *User) (*ExpenseStats, error) {
	logger := config.GetLogger()

	cacheKey := "ExpenseStats:" + strconv.Itoa(viewer.ID)
	var cached ExpenseStats
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	db := config.GetDB()
	var stats ExpenseStats

	err := scopedExpenseQuery(db.WithContext(ctx).Model(&Expense{}), viewer).
		Select("state, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Group("state").
		Scan(&stats.ByState).Error
	if err != nil {
		return nil, err
	}

	err = scopedExpenseQuery(db.WithContext(ctx).Model(&Expense{}), viewer).
		Select("category, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Group("category").
		Scan(&stats.ByCategory).Error
	if err != nil {
		return nil, err
	}

	stats.TotalAmount = decimal.Zero
	for _, row := range stats.ByState {
		stats.Count += row.Count
		stats.TotalAmount = stats.TotalAmount.Add(row.TotalAmount)
	}

	if err := config.SetRedisObject(cacheKey, stats, time.Minute); err != nil {
		config.LogError(logger, "expense", "GetExpenseStats", "Error caching stats", viewer.ID, err)
	}

	return &stats, nil
}
