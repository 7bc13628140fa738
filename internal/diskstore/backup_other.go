//go:build !linux && !darwin

package diskstore

// excludeFromBackup is a no-op on platforms without a backup-exclusion
// mechanism the store can reach.
func excludeFromBackup(string) {}
