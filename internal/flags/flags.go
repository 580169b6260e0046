// Package flags computes and caches per-tenant feature flags. Resolution
// order for each key: explicit tenant override, then plan default, then the
// global default.
package flags

import "encoding/json"

// Key identifies one feature flag. The set is closed; unknown keys in stored
// JSON are ignored rather than dispatched on at runtime.
type Key string

// Known feature-flag keys.
const (
	KeyMaxUsers         Key = "max_users"
	KeyOrderLimitPerDay Key = "order_limit_per_day"
	KeyAdvancedReports  Key = "advanced_reports"
	KeyAPIAccess        Key = "api_access"
	KeyCustomDomain     Key = "custom_domain"
)

// Flags is the resolved feature set for one tenant.
type Flags struct {
	MaxUsers         int  `json:"maxUsers"`
	OrderLimitPerDay int  `json:"orderLimitPerDay"`
	AdvancedReports  bool `json:"advancedReports"`
	APIAccess        bool `json:"apiAccess"`
	CustomDomain     bool `json:"customDomain"`
}

// Defaults returns the global default flag values used when neither the plan
// nor the tenant specifies a key.
func Defaults() Flags {
	return Flags{
		MaxUsers:         5,
		OrderLimitPerDay: 100,
		AdvancedReports:  false,
		APIAccess:        false,
		CustomDomain:     false,
	}
}

// appliers maps each known key to the mutation it performs on a Flags value.
// This table is the single place a key is interpreted.
var appliers = map[Key]func(f *Flags, raw json.RawMessage){
	KeyMaxUsers:         func(f *Flags, raw json.RawMessage) { applyInt(raw, &f.MaxUsers) },
	KeyOrderLimitPerDay: func(f *Flags, raw json.RawMessage) { applyInt(raw, &f.OrderLimitPerDay) },
	KeyAdvancedReports:  func(f *Flags, raw json.RawMessage) { applyBool(raw, &f.AdvancedReports) },
	KeyAPIAccess:        func(f *Flags, raw json.RawMessage) { applyBool(raw, &f.APIAccess) },
	KeyCustomDomain:     func(f *Flags, raw json.RawMessage) { applyBool(raw, &f.CustomDomain) },
}

// KnownKey reports whether a stored key is part of the closed set.
func KnownKey(key string) bool {
	_, ok := appliers[Key(key)]
	return ok
}

// Apply overlays a key/value layer onto f. Unknown keys and malformed values
// leave f unchanged.
func (f *Flags) Apply(layer map[string]json.RawMessage) {
	if f == nil || len(layer) == 0 {
		return
	}
	for key, raw := range layer {
		applier, ok := appliers[Key(key)]
		if !ok {
			continue
		}
		applier(f, raw)
	}
}

// Resolve computes a tenant's flags from the plan-default and override layers.
// Override values supersede plan defaults, which supersede global defaults.
func Resolve(planDefaults, overrides map[string]json.RawMessage) Flags {
	resolved := Defaults()
	resolved.Apply(planDefaults)
	resolved.Apply(overrides)
	return resolved
}

func applyBool(raw json.RawMessage, target *bool) {
	var value bool
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return
	}
	*target = value
}

func applyInt(raw json.RawMessage, target *int) {
	var value int
	if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil {
		return
	}
	*target = value
}
