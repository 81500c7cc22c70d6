package orgchart

import (
	"strings"
	"unicode"
)

const (
	RoleDoctor      = "Arzt"
	RoleMFA         = "MFA"
	RoleTraineeMFA  = "Auszubildende-MFA"
	RoleResident    = "Weiterbildungsassistent"
	RoleAdmin       = "Verwaltung"
	RoleExternal    = "Extern"
	RoleDefault     = "default"
	DefaultColor    = "#4F7CBA"
	VacantLabel     = "Vakant"
	unknownInitials = "?"
)

// Palette maps a role name to a hex color.
type Palette map[string]string

// DefaultPalette is used when a practice does not configure its own colors.
var DefaultPalette = Palette{
	RoleDoctor:     "#3B82F6",
	RoleMFA:        "#10B981",
	RoleTraineeMFA: "#F59E0B",
	RoleResident:   "#8B5CF6",
	RoleAdmin:      "#64748B",
	RoleExternal:   "#F43F5E",
	RoleDefault:    "#9CA3AF",
}

// Merge returns a palette with overrides applied on top of p.
func (p Palette) Merge(overrides map[string]string) Palette {
	out := make(Palette, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Color returns the color the role label resolves to.
func (p Palette) Color(label string) string {
	role := ClassifyRole(label, p)
	if c, ok := p[role]; ok {
		return c
	}
	if c, ok := DefaultPalette[role]; ok {
		return c
	}
	return DefaultPalette[RoleDefault]
}

// ClassifyRole maps a free-text role or department label to a palette key.
// An exact key wins; otherwise a few German and English fragments decide.
func ClassifyRole(label string, p Palette) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return RoleDefault
	}
	if _, ok := p[label]; ok {
		return label
	}
	lower := strings.ToLower(label)
	trainee := strings.Contains(lower, "azubi") || strings.Contains(lower, "auszubildende")
	switch {
	case strings.Contains(lower, "arzt") || strings.Contains(lower, "doctor"):
		return RoleDoctor
	case strings.Contains(lower, "mfa") && !trainee:
		return RoleMFA
	case trainee:
		return RoleTraineeMFA
	case strings.Contains(lower, "weiterbildung"):
		return RoleResident
	case strings.Contains(lower, "verwaltung") || strings.Contains(lower, "admin"):
		return RoleAdmin
	case strings.Contains(lower, "extern"):
		return RoleExternal
	}
	return RoleDefault
}

// Initials returns two upper-case letters for an avatar: first and last word
// initials, or the first two letters of a single word.
func Initials(name string) string {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return unknownInitials
	case 1:
		r := []rune(fields[0])
		if len(r) > 2 {
			r = r[:2]
		}
		return strings.ToUpper(string(r))
	}
	first := []rune(fields[0])[0]
	last := []rune(fields[len(fields)-1])[0]
	return string([]rune{unicode.ToUpper(first), unicode.ToUpper(last)})
}
