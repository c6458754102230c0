package match

import "fmt"

// Policy selects how local matches are grouped into notifications.
type Policy int

const (
	// PolicySingle emits one notification naming the closest match and
	// summarizing the rest.
	PolicySingle Policy = iota
	// PolicyPerCell emits one notification per originating graticule,
	// closest cells first, capped with a spillover.
	PolicyPerCell
	// PolicyPerLocation emits one notification per match, capped with a
	// spillover.
	PolicyPerLocation
	// PolicyNone suppresses local notifications entirely. Global
	// notifications have their own independent switch.
	PolicyNone
)

func (p Policy) String() string {
	switch p {
	case PolicySingle:
		return "single"
	case PolicyPerCell:
		return "per-cell"
	case PolicyPerLocation:
		return "per-location"
	case PolicyNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the configuration form of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "single":
		return PolicySingle, nil
	case "per-cell":
		return PolicyPerCell, nil
	case "per-location":
		return PolicyPerLocation, nil
	case "none":
		return PolicyNone, nil
	default:
		return 0, fmt.Errorf("unknown notification policy %q", s)
	}
}
