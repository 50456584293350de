package oauth

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached access token.
type Entry struct {
	Token     string
	ExpiresAt time.Time
	CachedAt  time.Time
}

// Fresh reports now < ExpiresAt - buffer.
func (e *Entry) Fresh(now time.Time, buffer time.Duration) bool {
	return e != nil && e.Token != "" && now.Before(e.ExpiresAt.Add(-buffer))
}

// WithinFallback reports now - ExpiresAt < window. Tokens that have not
// expired yet always qualify.
func (e *Entry) WithinFallback(now time.Time, window time.Duration) bool {
	return e != nil && e.Token != "" && now.Sub(e.ExpiresAt) < window
}

// wireEntry is the distributed-cache encoding, times in epoch milliseconds.
type wireEntry struct {
	Token     *string `json:"token"`
	ExpiresAt *int64  `json:"expiresAt"`
	CachedAt  int64   `json:"cachedAt"`
}

// MarshalJSON encodes the entry as {token, expiresAt, cachedAt}.
func (e Entry) MarshalJSON() ([]byte, error) {
	expires := e.ExpiresAt.UnixMilli()
	return json.Marshal(wireEntry{
		Token:     &e.Token,
		ExpiresAt: &expires,
		CachedAt:  e.CachedAt.UnixMilli(),
	})
}

// UnmarshalJSON rejects entries without a string token and numeric expiry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if w.Token == nil || w.ExpiresAt == nil {
		return fmt.Errorf("%w: entry lacks token or expiresAt", ErrInvalidResponse)
	}

	e.Token = *w.Token
	e.ExpiresAt = time.UnixMilli(*w.ExpiresAt)
	e.CachedAt = time.UnixMilli(w.CachedAt)
	return nil
}
