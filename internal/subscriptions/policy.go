package subscriptions

import "fmt"

// Policy controls what happens to a record on unsubscribe.
type Policy string

// Unsubscribe policies.
const (
	// PolicyRetain keeps the record and stamps deleted_at, preserving history.
	PolicyRetain Policy = "retain"
	// PolicyPurge removes the record.
	PolicyPurge Policy = "purge"
)

// ParsePolicy converts a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyRetain, PolicyPurge:
		return p, nil
	case "":
		return PolicyRetain, nil
	default:
		return "", fmt.Errorf("unknown unsubscribe policy %q (want %q or %q)", s, PolicyRetain, PolicyPurge)
	}
}
