package models

import "time"

// TxMetaTTL is how long a cached TransactionMeta entry stays fresh.
const TxMetaTTL = 15 * time.Minute

// TransactionMeta is resolved off-chain metadata for one transaction hash.
type TransactionMeta struct {
	TimestampISO string `json:"timestamp_iso"`
	Sender       string `json:"sender,omitempty"`
	CachedAt     int64  `json:"cached_at"` // epoch milliseconds
}

// Fresh reports whether the entry is still within the TTL at the given time.
func (m TransactionMeta) Fresh(now time.Time) bool {
	return now.UnixMilli()-m.CachedAt <= TxMetaTTL.Milliseconds()
}
