package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IdempotencyKey remembers which resource a client request created.
// It is written in the same unit of work as the stock movement, so a
// request that rolled back leaves no key behind.
// Unique constraint: (scope, idempotency_key).
type IdempotencyKey struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Scope       string    `gorm:"size:50;not null;index:uniq_idem,unique" json:"scope"`
	Key         string    `gorm:"column:idempotency_key;size:255;not null;index:uniq_idem,unique" json:"key"`
	RequestHash string    `gorm:"size:64;not null" json:"request_hash"`
	ResourceId  int       `gorm:"not null" json:"resource_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RequestHash fingerprints a request body so a key reused with a different
// request can be told apart from a retry.
func RequestHash(request any) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
