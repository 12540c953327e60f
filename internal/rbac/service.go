package rbac

import "sort"

// Authorize reports whether role may perform capability. Unknown capabilities are denied.
func Authorize(capability Capability, role Role) bool {
	for _, allowed := range policy[capability] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Capabilities lists what role may do, sorted by name.
func Capabilities(role Role) []Capability {
	caps := make([]Capability, 0, len(policy))
	for capability := range policy {
		if Authorize(capability, role) {
			caps = append(caps, capability)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
