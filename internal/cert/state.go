package cert

// State is the reconciler state for one domain's certificate, persisted in
// the certificate table.
type State string

const (
	StateAbsent       State = "absent"
	StatePendingIssue State = "pending_issue"
	StateValid        State = "valid"
	StatePendingRenew State = "pending_renew"

	// StateFailed is terminal for automatic transitions. An operator
	// rerun (deploy or certs renew) moves it back through pending.
	StateFailed State = "failed"
)
