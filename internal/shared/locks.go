package shared

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TenantRootLockKey is the advisory lock serializing ROOT tenant writes.
const TenantRootLockKey = "iam:tenant:root"

// ActiveTenantLockKey builds the advisory lock key guarding a user's active tenant switch.
func ActiveTenantLockKey(userID int64) string {
	return "iam:active-tenant:" + strconv.FormatInt(userID, 10)
}

// NormalizeName trims and NFC-normalizes a display name so visually equal
// names compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
