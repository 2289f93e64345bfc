package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestResolveParties_AssignsAllThree(t *testing.T) {
	parties, err := ResolveParties(context.Background(), stdDirectory(), 1, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if parties.Manager == nil || parties.Manager.ID != 2 {
		t.Fatalf("expected manager 2, got %+v", parties.Manager)
	}
	if parties.Finance == nil || parties.Finance.ID != 4 {
		t.Fatalf("expected finance user 4, got %+v", parties.Finance)
	}
	if parties.Compliance == nil || parties.Compliance.ID != 5 {
		t.Fatalf("expected compliance user 5, got %+v", parties.Compliance)
	}
}

func TestResolveParties_MissingManagerPolicy(t *testing.T) {
	directory := stdDirectory()
	directory.manager = nil

	parties, err := ResolveParties(context.Background(), directory, 1, false)
	if err != nil {
		t.Fatalf("resolve without manager: %v", err)
	}
	if parties.Manager != nil {
		t.Fatalf("expected nil manager, got %+v", parties.Manager)
	}

	_, err = ResolveParties(context.Background(), directory, 1, true)
	if !errors.Is(err, ErrNoManagerAssigned) {
		t.Fatalf("expected ErrNoManagerAssigned, got %v", err)
	}
}

func TestResolveParties_MissingFinanceOrCompliance(t *testing.T) {
	directory := stdDirectory()
	directory.finance = nil
	directory.compliance = nil

	parties, err := ResolveParties(context.Background(), directory, 1, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if parties.Finance != nil || parties.Compliance != nil {
		t.Fatalf("expected unassigned finance and compliance, got %+v", parties)
	}
}
