package config

import (
	"os"
	"strings"
)

// RequireManagerOnSubmit blocks submission for employees with no assigned
// manager. Default (off) keeps the legacy behavior: the expense submits with
// an unset manager slot and only vp/cfo can approve it.
//
// Set via env:
// - REQUIRE_MANAGER_ON_SUBMIT=true
func RequireManagerOnSubmit() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REQUIRE_MANAGER_ON_SUBMIT")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PaymentsDispatcherEnabled starts the background goroutine that publishes
// pending payment outbox rows to Pub/Sub. On by default; turn it off on
// instances that should only serve HTTP.
//
// Set via env:
// - PAYMENTS_DISPATCHER_ENABLED=false
func PaymentsDispatcherEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PAYMENTS_DISPATCHER_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
