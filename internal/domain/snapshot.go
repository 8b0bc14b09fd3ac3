package domain

import "time"

// SnapshotVersion is bumped whenever the persisted layout changes
// incompatibly. Snapshots with another version are discarded on restore.
const SnapshotVersion = 1

// Snapshot is the sanitized session state written to the durable store.
// PaymentMethod only ever holds a Sanitized projection.
type Snapshot struct {
	Version          int            `json:"version"`
	SessionID        string         `json:"session_id"`
	CurrentStep      Step           `json:"current_step"`
	GuestInfo        *GuestInfo     `json:"guest_info,omitempty"`
	ContactEmail     string         `json:"contact_email,omitempty"`
	ShippingInfo     *ShippingInfo  `json:"shipping_info,omitempty"`
	PaymentMethod    *PaymentMethod `json:"payment_method,omitempty"`
	OrderData        *OrderData     `json:"order_data,omitempty"`
	Consents         Consents       `json:"consents"`
	SavedAddresses   []Address      `json:"saved_addresses,omitempty"`
	Preferences      *Preferences   `json:"preferences,omitempty"`
	DataPrefetched   bool           `json:"data_prefetched"`
	SessionExpiresAt *time.Time     `json:"session_expires_at,omitempty"`
	LastSyncAt       *time.Time     `json:"last_sync_at,omitempty"`
}

// IsExpired reports whether the snapshot's session expired before now.
// Snapshots without an expiry never expire here; the store TTL bounds them.
func (s *Snapshot) IsExpired(now time.Time) bool {
	return s.SessionExpiresAt != nil && now.After(*s.SessionExpiresAt)
}

// TTL returns how long the snapshot should be kept, at least min.
func (s *Snapshot) TTL(now time.Time, min time.Duration) time.Duration {
	if s.SessionExpiresAt == nil {
		return min
	}
	if d := s.SessionExpiresAt.Sub(now); d > min {
		return d
	}
	return min
}
