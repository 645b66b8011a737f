package model

import "time"

// License entitles an organization to run one plugin, with a usage counter
// for the billing period. Remaining is decremented atomically on each
// successful extraction run.
type License struct {
	OrgID     string     `json:"org_id"`
	PluginKey string     `json:"plugin_key"`
	Remaining int        `json:"remaining"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the license lapsed before now.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}
