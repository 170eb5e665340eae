package types

import (
	"time"
)

type CacheEntry struct {
	Key      string    `json:"key"`
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}
