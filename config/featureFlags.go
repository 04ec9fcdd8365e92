package config

import (
	"os"
	"strings"
)

// LegacyUpdateReversalDating dates _UPDATE_REVERSAL ledger entries with the edited
// document's new date instead of its original date.
//
// Set via env:
// - LEGACY_UPDATE_REVERSAL_DATING=true
func LegacyUpdateReversalDating() bool {
	return envTrue("LEGACY_UPDATE_REVERSAL_DATING")
}

// MaintenanceEndpointsDisabled turns off the HTTP triggers for sync-balances,
// sync-stock and rebuild-inventory. The cmd/ tools keep working.
//
// Set via env:
// - MAINTENANCE_ENDPOINTS_DISABLED=true
func MaintenanceEndpointsDisabled() bool {
	return envTrue("MAINTENANCE_ENDPOINTS_DISABLED")
}

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
