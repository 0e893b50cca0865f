// Package check defines the core interfaces and types for directory-service
// health checks.
//
// A Check evaluates one category of health (replication, time sync, resource
// utilization, ...) against a single target server, or once against the whole
// infrastructure for infrastructure-scoped categories. Different categories
// implement the Check interface in their own packages under pkg/check.
//
// Every evaluation produces Results with a uniform shape regardless of
// category: a severity Status, a one-line message, a category-specific data
// bag and an ordered list of recommendations.
//
// The Registry provides category discovery, allowing categories to be
// registered by name and instantiated from configuration at runtime.
package check

import (
	"context"
	"strings"
)

// Category identifies a family of health checks.
type Category string

// The twelve check categories, in their canonical evaluation order.
const (
	CategoryServices     Category = "services"
	CategoryNetwork      Category = "network"
	CategoryReplication  Category = "replication"
	CategoryRoles        Category = "roles"
	CategoryDNS          Category = "dns"
	CategorySysvol       Category = "sysvol"
	CategoryTimeSync     Category = "timesync"
	CategoryResources    Category = "resources"
	CategorySecurity     Category = "security"
	CategoryDatabase     Category = "database"
	CategoryEvents       Category = "events"
	CategoryCertificates Category = "certificates"
)

// AllCategories lists every category in canonical order.
var AllCategories = []Category{
	CategoryServices,
	CategoryNetwork,
	CategoryReplication,
	CategoryRoles,
	CategoryDNS,
	CategorySysvol,
	CategoryTimeSync,
	CategoryResources,
	CategorySecurity,
	CategoryDatabase,
	CategoryEvents,
	CategoryCertificates,
}

// ParseCategory converts a case-insensitive name to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories {
		if c == known {
			return c, nil
		}
	}
	return "", &UnknownCategoryError{Name: s}
}

// Scope says whether a category runs per target or once per infrastructure.
type Scope string

const (
	// ScopeTarget categories run once for every target server.
	ScopeTarget Scope = "target"
	// ScopeInfrastructure categories run exactly once per run.
	ScopeInfrastructure Scope = "infrastructure"
)

// InfrastructureName is the target name used for infrastructure-scoped
// results when no domain name is configured.
const InfrastructureName = "infrastructure"

// Target is a server under evaluation.
type Target struct {
	// Name is the server name as supplied or discovered.
	Name string `json:"name" yaml:"name"`

	// Address optionally overrides the address used by network probes.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Host returns the address probes should contact: Address when set,
// otherwise Name.
func (t Target) Host() string {
	if t.Address != "" {
		return t.Address
	}
	return t.Name
}

// InfrastructureTarget returns the scope marker used by infrastructure-wide
// categories.
func InfrastructureTarget(domain string) Target {
	if domain == "" {
		return Target{Name: InfrastructureName}
	}
	return Target{Name: domain}
}

// Check is the interface that all category evaluators implement.
type Check interface {
	// Type returns the category this check evaluates.
	Type() Category

	// Describe returns the metadata for this check instance.
	Describe() Descriptor

	// Run evaluates the target and returns its Results. Per-target
	// categories return exactly one Result; the roles category returns
	// one Result per role.
	//
	// A check that cannot obtain any signal returns an Unknown Result, not
	// an error. A non-nil error means the evaluation could not complete at
	// all and the orchestrator skips the (target, category) pair.
	Run(ctx context.Context, target Target) ([]Result, error)
}
