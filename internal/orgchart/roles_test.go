package orgchart_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func TestClassifyRole(t *testing.T) {
	cases := map[string]string{
		"Arzt":                      orgchart.RoleDoctor,
		"Oberarzt Kardiologie":      orgchart.RoleDoctor,
		"Doctor":                    orgchart.RoleDoctor,
		"MFA Empfang":               orgchart.RoleMFA,
		"Azubi MFA":                 orgchart.RoleTraineeMFA,
		"Auszubildende":             orgchart.RoleTraineeMFA,
		"Weiterbildungsassistentin": orgchart.RoleResident,
		"Praxisverwaltung":          orgchart.RoleAdmin,
		"Admin":                     orgchart.RoleAdmin,
		"Externer Dienstleister":    orgchart.RoleExternal,
		"Reinigung":                 orgchart.RoleDefault,
		"   ":                       orgchart.RoleDefault,
	}
	for label, want := range cases {
		assert.Equal(t, want, orgchart.ClassifyRole(label, orgchart.DefaultPalette), label)
	}
}

func TestPaletteMergeAndExactMatch(t *testing.T) {
	p := orgchart.DefaultPalette.Merge(map[string]string{"Labor": "#112233", orgchart.RoleMFA: "#000000", "Leer": " "})

	assert.Equal(t, "#112233", p.Color("Labor"))
	assert.Equal(t, "#000000", p.Color("MFA Empfang"))
	assert.Equal(t, orgchart.DefaultPalette[orgchart.RoleDefault], p.Color("Leer"))
	assert.Equal(t, "#10B981", orgchart.DefaultPalette[orgchart.RoleMFA], "merge must not touch the receiver")
}

func TestRoleColorPrefersOwnColor(t *testing.T) {
	p := domain.Position{Title: "Arzt", Color: "#ABCDEF"}
	assert.Equal(t, "#ABCDEF", orgchart.RoleColor(p, orgchart.DefaultPalette))

	p.Color = orgchart.DefaultColor
	assert.Equal(t, "#3B82F6", orgchart.RoleColor(p, orgchart.DefaultPalette))

	p.Department = ptr("Verwaltung")
	assert.Equal(t, "#64748B", orgchart.RoleColor(p, orgchart.DefaultPalette))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "AS", orgchart.Initials("Anna Maria Schmidt"))
	assert.Equal(t, "MA", orgchart.Initials("max"))
	assert.Equal(t, "JO", orgchart.Initials("jo"))
	assert.Equal(t, "ÖB", orgchart.Initials("özlem bauer"))
	assert.Equal(t, "?", orgchart.Initials("  "))
}

func TestSummarize(t *testing.T) {
	inactive := domain.Position{ID: "old", Active: false, IsManagement: true}
	stats := orgchart.Summarize([]domain.Position{
		{ID: "a", Active: true, Level: 0, IsManagement: true, UserID: ptr("u1"), Department: ptr("Leitung")},
		{ID: "b", Active: true, Level: 1, Department: ptr(" leitung ")},
		{ID: "c", Active: true, Level: 1, TeamID: ptr("empfang"), Department: ptr("Empfang")},
		{ID: "d", Active: true, Level: 2},
		inactive,
	})

	assert.Equal(t, orgchart.Stats{
		Positions:   4,
		Departments: 2,
		Filled:      2,
		Vacant:      2,
		Levels:      3,
		Management:  1,
	}, stats)
}
