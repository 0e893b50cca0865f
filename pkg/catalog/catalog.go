// Package catalog registers every built-in check category.
package catalog

import (
	"fmt"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/check/certificates"
	"github.com/kylerisse/dirhealth/pkg/check/database"
	dnscheck "github.com/kylerisse/dirhealth/pkg/check/dns"
	"github.com/kylerisse/dirhealth/pkg/check/events"
	"github.com/kylerisse/dirhealth/pkg/check/network"
	"github.com/kylerisse/dirhealth/pkg/check/replication"
	"github.com/kylerisse/dirhealth/pkg/check/resources"
	"github.com/kylerisse/dirhealth/pkg/check/roles"
	"github.com/kylerisse/dirhealth/pkg/check/security"
	"github.com/kylerisse/dirhealth/pkg/check/services"
	"github.com/kylerisse/dirhealth/pkg/check/sysvol"
	"github.com/kylerisse/dirhealth/pkg/check/timesync"
)

type entry struct {
	category check.Category
	factory  check.Factory
	desc     check.Descriptor
}

// entries are listed in canonical evaluation order.
var entries = []entry{
	{services.TypeName, services.Factory, services.Desc},
	{network.TypeName, network.Factory, network.Desc},
	{replication.TypeName, replication.Factory, replication.Desc},
	{roles.TypeName, roles.Factory, roles.Desc},
	{dnscheck.TypeName, dnscheck.Factory, dnscheck.Desc},
	{sysvol.TypeName, sysvol.Factory, sysvol.Desc},
	{timesync.TypeName, timesync.Factory, timesync.Desc},
	{resources.TypeName, resources.Factory, resources.Desc},
	{security.TypeName, security.Factory, security.Desc},
	{database.TypeName, database.Factory, database.Desc},
	{events.TypeName, events.Factory, events.Desc},
	{certificates.TypeName, certificates.Factory, certificates.Desc},
}

// Register adds every built-in category to reg in canonical order.
func Register(reg *check.Registry) error {
	for _, e := range entries {
		if err := reg.Register(e.category, e.factory, e.desc); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	return nil
}

// New returns a Registry holding every built-in category.
func New() *check.Registry {
	reg := check.NewRegistry()
	if err := Register(reg); err != nil {
		// entries is static; a duplicate is a programming error.
		panic(err)
	}
	return reg
}
