package models

import "github.com/bartventer/gorm-multitenancy/v8/pkg/driver"

// All returns every model the service migrates, in dependency order.
func All() []driver.TenantTabler {
	return []driver.TenantTabler{
		&Community{},
		&User{},
		&CommunityMember{},
		&CommunitySubscription{},
		&BillingHistory{},
		&UsageTracking{},
		&TrialRecord{},
		&Notification{},
	}
}
