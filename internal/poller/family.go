// internal/poller/family.go
package poller

import (
	"fmt"
	"strings"
)

// Family is the controller family of an endpoint.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyS7200
	FamilyS7300
	FamilyS7400
	FamilyS71200
	FamilyS71500
	FamilyLogo
)

func (f Family) String() string {
	switch f {
	case FamilyS7200:
		return "S7-200"
	case FamilyS7300:
		return "S7-300"
	case FamilyS7400:
		return "S7-400"
	case FamilyS71200:
		return "S7-1200"
	case FamilyS71500:
		return "S7-1500"
	case FamilyLogo:
		return "LOGO"
	default:
		return "unknown"
	}
}

// ParseFamily accepts "S7-1200", "s71200", "1200" and similar spellings.
func ParseFamily(s string) (Family, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	n = strings.ReplaceAll(n, "-", "")
	n = strings.ReplaceAll(n, " ", "")
	n = strings.TrimPrefix(n, "S7")

	switch n {
	case "200":
		return FamilyS7200, nil
	case "300":
		return FamilyS7300, nil
	case "400":
		return FamilyS7400, nil
	case "1200":
		return FamilyS71200, nil
	case "1500":
		return FamilyS71500, nil
	case "LOGO", "LOGO!":
		return FamilyLogo, nil
	}
	return FamilyUnknown, fmt.Errorf("poller: unknown controller family %q", s)
}
