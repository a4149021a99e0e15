// Package access defines roles, sensitivity labels, and the static policy
// that maps each role to the labels it may read.
//
// Each role's label set is stored explicitly. Nothing is inferred from an
// ordering of roles, so a policy need not be nested.
package access

import (
	"fmt"
	"slices"
	"strings"
)

// Role identifies a caller's access category.
type Role string

const (
	RoleIntern   Role = "Intern"
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleHR       Role = "HR"
)

// Label is the sensitivity classification attached to a fragment.
type Label string

const (
	LabelPublic       Label = "public"
	LabelEmployee     Label = "employee"
	LabelManager      Label = "manager"
	LabelConfidential Label = "confidential"
)

var (
	knownRoles  = []Role{RoleIntern, RoleEmployee, RoleManager, RoleHR}
	knownLabels = []Label{LabelPublic, LabelEmployee, LabelManager, LabelConfidential}
)

// UnknownRoleError is returned for a role absent from the policy table.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Role)
}

// UnknownLabelError is returned for a label outside the defined set.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown sensitivity label %q", e.Label)
}

// ParseRole resolves s to a known role, ignoring case.
func ParseRole(s string) (Role, error) {
	for _, r := range knownRoles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", &UnknownRoleError{Role: s}
}

// ParseLabel resolves s to a known label, ignoring case.
func ParseLabel(s string) (Label, error) {
	for _, l := range knownLabels {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return "", &UnknownLabelError{Label: s}
}

// Labels returns every defined label in canonical order.
func Labels() []Label {
	return slices.Clone(knownLabels)
}

// LabelSet is an immutable set of labels.
type LabelSet struct {
	members map[Label]struct{}
}

// NewLabelSet builds a set from labels.
func NewLabelSet(labels ...Label) LabelSet {
	m := make(map[Label]struct{}, len(labels))
	for _, l := range labels {
		m[l] = struct{}{}
	}
	return LabelSet{members: m}
}

// Contains reports whether l is a member. The comparison is exact: a label
// read from index metadata must match a defined label byte for byte.
func (s LabelSet) Contains(l Label) bool {
	_, ok := s.members[l]
	return ok
}

// ContainsString is Contains for raw metadata values.
func (s LabelSet) ContainsString(v string) bool {
	return s.Contains(Label(v))
}

// Len returns the number of labels.
func (s LabelSet) Len() int {
	return len(s.members)
}

// Slice returns the members in canonical label order.
func (s LabelSet) Slice() []Label {
	out := make([]Label, 0, len(s.members))
	for _, l := range knownLabels {
		if s.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}

// Strings returns the members as strings in canonical order.
func (s LabelSet) Strings() []string {
	labels := s.Slice()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

// Policy maps roles to the label sets they may read.
type Policy struct {
	allowed map[Role]LabelSet
}

// DefaultPolicy returns the standard four-role table.
func DefaultPolicy() *Policy {
	return &Policy{allowed: map[Role]LabelSet{
		RoleIntern:   NewLabelSet(LabelPublic),
		RoleEmployee: NewLabelSet(LabelPublic, LabelEmployee),
		RoleManager:  NewLabelSet(LabelPublic, LabelEmployee, LabelManager),
		RoleHR:       NewLabelSet(LabelPublic, LabelEmployee, LabelManager, LabelConfidential),
	}}
}

// NewPolicy builds a policy from an explicit table. Every known role must
// be present, and every set must be non-empty and include public.
func NewPolicy(table map[Role][]Label) (*Policy, error) {
	p := &Policy{allowed: make(map[Role]LabelSet, len(table))}
	for role, labels := range table {
		if !slices.Contains(knownRoles, role) {
			return nil, &UnknownRoleError{Role: string(role)}
		}
		for _, l := range labels {
			if !slices.Contains(knownLabels, l) {
				return nil, &UnknownLabelError{Label: string(l)}
			}
		}
		set := NewLabelSet(labels...)
		if !set.Contains(LabelPublic) {
			return nil, fmt.Errorf("role %s: label set must include %q", role, LabelPublic)
		}
		p.allowed[role] = set
	}
	for _, r := range knownRoles {
		if _, ok := p.allowed[r]; !ok {
			return nil, fmt.Errorf("role %s: missing from policy table", r)
		}
	}
	return p, nil
}

// WithOverrides returns a copy of p with the listed roles' sets replaced.
// Keys and labels are parsed case-insensitively.
func (p *Policy) WithOverrides(overrides map[string][]string) (*Policy, error) {
	table := make(map[Role][]Label, len(knownRoles))
	for role, set := range p.allowed {
		table[role] = set.Slice()
	}
	for name, raw := range overrides {
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		labels := make([]Label, 0, len(raw))
		for _, v := range raw {
			l, err := ParseLabel(v)
			if err != nil {
				return nil, err
			}
			labels = append(labels, l)
		}
		table[role] = labels
	}
	return NewPolicy(table)
}

// Allowed returns the label set for role.
func (p *Policy) Allowed(role Role) (LabelSet, error) {
	set, ok := p.allowed[role]
	if !ok {
		return LabelSet{}, &UnknownRoleError{Role: string(role)}
	}
	return set, nil
}

// Roles returns the roles in the table in canonical order.
func (p *Policy) Roles() []Role {
	out := make([]Role, 0, len(p.allowed))
	for _, r := range knownRoles {
		if _, ok := p.allowed[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Table returns a copy of the policy as role name to label names.
func (p *Policy) Table() map[string][]string {
	out := make(map[string][]string, len(p.allowed))
	for role, set := range p.allowed {
		out[string(role)] = set.Strings()
	}
	return out
}
