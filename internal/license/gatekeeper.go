// Package license enforces per-organization plugin entitlements and usage
// quotas ahead of every extraction run.
package license

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/model"
)

// CounterStore holds the shared usage counters. ConsumeUse must be atomic:
// check entitlement, check quota, and decrement in one serialized step so
// that two concurrent callers can never both spend the last unit.
type CounterStore interface {
	// ConsumeUse decrements the org's remaining quota for the plugin and
	// returns the remaining count after the decrement. It fails with
	// model.ErrPluginNotLicensed when no live license exists and with
	// model.ErrQuotaExceeded when the counter is at zero.
	ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error)

	// RefundUse returns one unit to the counter after a run that consumed
	// quota but produced no record.
	RefundUse(ctx context.Context, orgID, pluginKey string) error
}

// Gatekeeper guards plugin execution. It is safe for concurrent use; all
// serialization lives in the CounterStore.
type Gatekeeper struct {
	store CounterStore
	now   func() time.Time
}

// New creates a Gatekeeper backed by the given counter store.
func New(store CounterStore) *Gatekeeper {
	return &Gatekeeper{store: store, now: time.Now}
}

// CheckAndConsume verifies the organization holds a live license for the
// plugin and has remaining quota, then atomically consumes one unit. A nil
// return means the run is allowed. Denials wrap model.ErrPluginNotLicensed
// or model.ErrQuotaExceeded and are terminal for the request.
func (g *Gatekeeper) CheckAndConsume(ctx context.Context, orgID, pluginKey string) error {
	remaining, err := g.store.ConsumeUse(ctx, orgID, pluginKey, g.now())
	if err != nil {
		zap.L().Warn("license: plugin run denied",
			zap.String("org_id", orgID),
			zap.String("plugin_key", pluginKey),
			zap.Error(err),
		)
		return eris.Wrapf(err, "license: check %s for org %s", pluginKey, orgID)
	}
	zap.L().Debug("license: plugin run allowed",
		zap.String("org_id", orgID),
		zap.String("plugin_key", pluginKey),
		zap.Int("remaining", remaining),
	)
	return nil
}

// Refund returns one consumed unit, used when a run was admitted but the
// plugin produced no usable record.
func (g *Gatekeeper) Refund(ctx context.Context, orgID, pluginKey string) error {
	if err := g.store.RefundUse(ctx, orgID, pluginKey); err != nil {
		return eris.Wrapf(err, "license: refund %s for org %s", pluginKey, orgID)
	}
	return nil
}

// MemoryStore is an in-process CounterStore guarded by a mutex. It backs
// tests and single-node deployments; multi-node deployments use the
// database-backed store instead.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]*model.License
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{licenses: make(map[string]*model.License)}
}

// Grant installs or replaces a license.
func (s *MemoryStore) Grant(lic model.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := lic
	s.licenses[counterKey(lic.OrgID, lic.PluginKey)] = &l
}

// ConsumeUse implements CounterStore with full check-and-decrement under
// one lock acquisition.
func (s *MemoryStore) ConsumeUse(ctx context.Context, orgID, pluginKey string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[counterKey(orgID, pluginKey)]
	if !ok || lic.Expired(now) {
		return 0, model.ErrPluginNotLicensed
	}
	if lic.Remaining <= 0 {
		return 0, model.ErrQuotaExceeded
	}
	lic.Remaining--
	return lic.Remaining, nil
}

// RefundUse implements CounterStore.
func (s *MemoryStore) RefundUse(ctx context.Context, orgID, pluginKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[counterKey(orgID, pluginKey)]
	if !ok {
		return model.ErrPluginNotLicensed
	}
	lic.Remaining++
	return nil
}

// Remaining reports the current counter value, for status display.
func (s *MemoryStore) Remaining(orgID, pluginKey string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[counterKey(orgID, pluginKey)]
	if !ok {
		return 0, false
	}
	return lic.Remaining, true
}

func counterKey(orgID, pluginKey string) string {
	return orgID + "/" + pluginKey
}
