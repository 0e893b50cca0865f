package catalog

import (
	"testing"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

func TestNew_CanonicalOrder(t *testing.T) {
	reg := New()
	got := reg.Categories()
	if len(got) != len(check.AllCategories) {
		t.Fatalf("expected %d categories, got %d", len(check.AllCategories), len(got))
	}
	for i, c := range check.AllCategories {
		if got[i] != c {
			t.Errorf("position %d: expected %q, got %q", i, c, got[i])
		}
	}
}

func TestNew_EveryCategoryBuildsWithDefaults(t *testing.T) {
	reg := New()
	for _, c := range reg.Categories() {
		chk, err := reg.Create(c, probe.Set{}, nil)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c, err)
			continue
		}
		if chk.Type() != c {
			t.Errorf("%s: check reports type %q", c, chk.Type())
		}
		desc, err := reg.Describe(c)
		if err != nil {
			t.Errorf("%s: describe: %v", c, err)
			continue
		}
		if desc.Scope == "" || len(desc.Signals) == 0 {
			t.Errorf("%s: incomplete descriptor %+v", c, desc)
		}
	}
}

func TestNew_RolesIsInfrastructureScoped(t *testing.T) {
	reg := New()
	for _, c := range reg.Categories() {
		desc, _ := reg.Describe(c)
		want := check.ScopeTarget
		if c == check.CategoryRoles {
			want = check.ScopeInfrastructure
		}
		if desc.Scope != want {
			t.Errorf("%s: expected scope %q, got %q", c, want, desc.Scope)
		}
	}
}

func TestRegister_Twice(t *testing.T) {
	reg := check.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Register(reg); err == nil {
		t.Error("expected error registering the catalog twice")
	}
}
