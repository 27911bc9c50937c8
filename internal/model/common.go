// Package model holds the Mirador Core domain, request and response types.
//
// Types mirror the JSON shapes exchanged with Mirador Core. Shared metadata is
// expressed as small embedded structs, and the capability interfaces below
// let callers ask a query for its tenant or time range without knowing the
// concrete query kind.
package model

import "fmt"

// TenantScope carries the optional tenant identifier.
type TenantScope struct {
	TenantID string `json:"tenantId,omitempty"`
}

// Tenant returns the tenant identifier, empty when unscoped.
func (t TenantScope) Tenant() string { return t.TenantID }

// AuthorInfo records who created or changed an entity.
type AuthorInfo struct {
	Author string `json:"author,omitempty"`
}

// TaggedEntity carries free-form tags.
type TaggedEntity struct {
	Tags []string `json:"tags,omitempty"`
}

// TimestampedEntity carries a server-formatted timestamp string.
type TimestampedEntity struct {
	Timestamp string `json:"timestamp,omitempty"`
}

// VersionedEntity carries a schema version string.
type VersionedEntity struct {
	Version string `json:"version,omitempty"`
}

// TimeRange bounds a query. Start and End are unix milliseconds.
type TimeRange struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Step  *int64 `json:"step,omitempty"`
}

// Validate checks start <= end and a positive step.
// A zero Start or End means "unbounded" and is not compared.
func (r TimeRange) Validate() error {
	if r.Start != 0 && r.End != 0 && r.Start > r.End {
		return &ValidationError{Field: "timeRange", Reason: fmt.Sprintf("start %d is after end %d", r.Start, r.End)}
	}
	if r.Step != nil && *r.Step <= 0 {
		return &ValidationError{Field: "timeRange.step", Reason: "must be greater than zero"}
	}
	return nil
}

// TenantScoped is implemented by every request that can be limited to a tenant.
type TenantScoped interface {
	Tenant() string
}

// TimeRanged is implemented by every request that carries an optional time range.
type TimeRanged interface {
	Range() *TimeRange
}

// ValidationError reports a single invalid request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Int64 returns a pointer to v. Handy for optional fields.
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
