package model

// CheckStatus represents the status of a doctor check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = "ok"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusError   CheckStatus = "error"
)

// CheckResult is the result of checking a single daemon dependency (tool, content, directory...).
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

// HasErrors returns true if any check failed.
func HasErrors(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == CheckStatusError {
			return true
		}
	}
	return false
}
