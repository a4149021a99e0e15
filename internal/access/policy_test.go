package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		role Role
		want []Label
	}{
		{RoleIntern, []Label{LabelPublic}},
		{RoleEmployee, []Label{LabelPublic, LabelEmployee}},
		{RoleManager, []Label{LabelPublic, LabelEmployee, LabelManager}},
		{RoleHR, []Label{LabelPublic, LabelEmployee, LabelManager, LabelConfidential}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			set, err := p.Allowed(tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Slice())
		})
	}
}

func TestDefaultPolicy_EveryRoleReadsPublic(t *testing.T) {
	p := DefaultPolicy()
	for _, role := range p.Roles() {
		set, err := p.Allowed(role)
		require.NoError(t, err)
		assert.Positive(t, set.Len())
		assert.True(t, set.Contains(LabelPublic), "role %s must read public", role)
	}
	assert.Equal(t, []Role{RoleIntern, RoleEmployee, RoleManager, RoleHR}, p.Roles())
}

func TestAllowed_UnknownRole(t *testing.T) {
	_, err := DefaultPolicy().Allowed(Role("Contractor"))
	var roleErr *UnknownRoleError
	require.True(t, errors.As(err, &roleErr))
	assert.Equal(t, "Contractor", roleErr.Role)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"Intern", RoleIntern, false},
		{"hr", RoleHR, false},
		{" manager ", RoleManager, false},
		{"CEO", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				var roleErr *UnknownRoleError
				assert.True(t, errors.As(err, &roleErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel("Confidential")
	require.NoError(t, err)
	assert.Equal(t, LabelConfidential, l)

	_, err = ParseLabel("secret")
	var labelErr *UnknownLabelError
	require.True(t, errors.As(err, &labelErr))
	assert.Equal(t, "secret", labelErr.Label)
}

func TestLabelSet_ContainsIsExact(t *testing.T) {
	set := NewLabelSet(LabelPublic)
	assert.True(t, set.ContainsString("public"))
	assert.False(t, set.ContainsString("Public"))
	assert.False(t, set.ContainsString("public "))
	assert.False(t, set.ContainsString(""))
}

func TestNewPolicy_NonNested(t *testing.T) {
	p, err := NewPolicy(map[Role][]Label{
		RoleIntern:   {LabelPublic},
		RoleEmployee: {LabelPublic, LabelEmployee},
		RoleManager:  {LabelPublic, LabelManager},
		RoleHR:       {LabelPublic, LabelConfidential},
	})
	require.NoError(t, err)

	hr, err := p.Allowed(RoleHR)
	require.NoError(t, err)
	assert.False(t, hr.Contains(LabelManager))
	assert.True(t, hr.Contains(LabelConfidential))
}

func TestNewPolicy_Rejects(t *testing.T) {
	full := func() map[Role][]Label {
		return map[Role][]Label{
			RoleIntern:   {LabelPublic},
			RoleEmployee: {LabelPublic},
			RoleManager:  {LabelPublic},
			RoleHR:       {LabelPublic},
		}
	}
	tests := []struct {
		name   string
		mutate func(map[Role][]Label)
	}{
		{"empty set", func(m map[Role][]Label) { m[RoleIntern] = nil }},
		{"missing public", func(m map[Role][]Label) { m[RoleHR] = []Label{LabelConfidential} }},
		{"unknown label", func(m map[Role][]Label) { m[RoleHR] = []Label{LabelPublic, "secret"} }},
		{"unknown role", func(m map[Role][]Label) { m["Contractor"] = []Label{LabelPublic} }},
		{"missing role", func(m map[Role][]Label) { delete(m, RoleManager) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := full()
			tt.mutate(table)
			_, err := NewPolicy(table)
			assert.Error(t, err)
		})
	}
}

func TestWithOverrides(t *testing.T) {
	p, err := DefaultPolicy().WithOverrides(map[string][]string{
		"intern": {"public", "employee"},
	})
	require.NoError(t, err)

	intern, err := p.Allowed(RoleIntern)
	require.NoError(t, err)
	assert.Equal(t, []string{"public", "employee"}, intern.Strings())

	hr, err := p.Allowed(RoleHR)
	require.NoError(t, err)
	assert.Equal(t, 4, hr.Len())

	_, err = DefaultPolicy().WithOverrides(map[string][]string{"Intern": {"employee"}})
	assert.Error(t, err, "override without public must be rejected")

	_, err = DefaultPolicy().WithOverrides(map[string][]string{"Board": {"public"}})
	var roleErr *UnknownRoleError
	assert.True(t, errors.As(err, &roleErr))
}

func TestTable(t *testing.T) {
	table := DefaultPolicy().Table()
	assert.Len(t, table, 4)
	assert.Equal(t, []string{"public"}, table["Intern"])
}
