package workflow

import (
	"context"
	"errors"
)

// ErrNoManagerAssigned is returned by ResolveParties when manager assignment
// is required and the employee has none.
var ErrNoManagerAssigned = errors.New("employee has no assigned manager")

// ResolvedParties holds the approval parties assigned to an expense at
// submission time. Manager may be nil when the employee has no assigned
// manager and requireManager is false; manager-role approval is then
// impossible until reassignment, leaving only the executive override path.
type ResolvedParties struct {
	Manager    *Party
	Finance    *Party
	Compliance *Party
}

// ResolveParties deterministically assigns the approval parties for an
// expense owned by employeeId. The finance party is the first active finance
// user in the Finance department; the compliance party is the first active
// compliance user in any department.
func ResolveParties(ctx context.Context, directory PartyDirectory, employeeId int, requireManager bool) (*ResolvedParties, error) {
	manager, err := directory.ManagerOf(ctx, employeeId)
	if err != nil {
		return nil, err
	}
	if manager == nil && requireManager {
		return nil, ErrNoManagerAssigned
	}

	finance, err := directory.FindActiveByRole(ctx, RoleFinance, "Finance")
	if err != nil {
		return nil, err
	}
	compliance, err := directory.FindActiveByRole(ctx, RoleCompliance, "")
	if err != nil {
		return nil, err
	}

	return &ResolvedParties{
		Manager:    manager,
		Finance:    finance,
		Compliance: compliance,
	}, nil
}
