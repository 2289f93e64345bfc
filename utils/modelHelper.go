package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
)

// ModelChangeLocker is implemented by models whose rows become immutable in
// certain lifecycle states (an expense after submission, a receipt after
// upload).
type ModelChangeLocker interface {
	CheckChangeAllowed(context.Context) error
}

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchSingleModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model owned by the given employee
// (employee_id is used in the query's WHERE, may return RecordNotFound)
func FetchOwnedModel[T any](ctx context.Context, employeeId int, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("employee_id = ?", employeeId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model and check its lifecycle state still allows edits
func FetchModelForChange[T ModelChangeLocker](ctx context.Context, employeeId int, id int, associations ...string) (*T, error) {
	result, err := FetchOwnedModel[T](ctx, employeeId, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := (*result).CheckChangeAllowed(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
