package authz

// DefaultPolicies is the baseline policy set a deployment starts from: it
// permits every action, leaving the bitset subset checks in Authorize as
// the only enforced restriction until an operator layers on narrower
// policies (e.g. a resource-level deny list).
func DefaultPolicies() []string {
	return []string{
		`permit(principal, action, resource);`,
	}
}
