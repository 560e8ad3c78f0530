package catalog

import "strings"

// Profile carries the organizational classification fields that decide which
// KPIs apply to a user.
type Profile struct {
	Band   string
	Stream string
}

// streamWildcards additionally accepts the literal "general" stream.
var (
	bandWildcards   = map[string]struct{}{"": {}, "*": {}, "all": {}, "any": {}}
	streamWildcards = map[string]struct{}{"": {}, "*": {}, "all": {}, "any": {}, "general": {}}
)

// AppliesTo reports whether a definition is in scope for the user. Band and
// stream are matched independently and both must hold. A missing user field
// or a wildcard definition field matches everything on that axis.
func AppliesTo(def Definition, p Profile) bool {
	return matchAxis(def.Band, p.Band, bandWildcards) &&
		matchAxis(def.Stream, p.Stream, streamWildcards)
}

func matchAxis(defVal, userVal string, wildcards map[string]struct{}) bool {
	userVal = strings.ToLower(strings.TrimSpace(userVal))
	if userVal == "" {
		return true
	}
	defVal = strings.ToLower(strings.TrimSpace(defVal))
	if _, wild := wildcards[defVal]; wild {
		return true
	}
	return defVal == userVal
}

// RoleAdapter filters a definition list down to the rating surface for one
// submitting user. The employee and manager-self adapters are the same
// machinery keyed off different profiles: a manager filing a personal
// self-review is filtered by the manager's own band and stream.
type RoleAdapter struct {
	role    string
	profile Profile
}

const (
	RoleEmployee    = "employee"
	RoleManagerSelf = "manager_self"
)

func EmployeeAdapter(p Profile) RoleAdapter {
	return RoleAdapter{role: RoleEmployee, profile: p}
}

func ManagerSelfAdapter(p Profile) RoleAdapter {
	return RoleAdapter{role: RoleManagerSelf, profile: p}
}

func (a RoleAdapter) Role() string { return a.role }

func (a RoleAdapter) Profile() Profile { return a.profile }

// Filter returns the applicable subset, preserving input order.
func (a RoleAdapter) Filter(defs []Definition) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		if AppliesTo(def, a.profile) {
			out = append(out, def)
		}
	}
	return out
}
