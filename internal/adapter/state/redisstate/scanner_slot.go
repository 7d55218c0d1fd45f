package redisstate

import (
	"context"
	"fmt"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// acquireScannerSlotScript atomically checks the current inflight count
// against maxInflight and, if there is room, increments it. Returns
// {acquired, observedInflight} so the caller can log the contended value
// either way. Grounded on the teacher's RedisLuaLimiter token-bucket script:
// same read-check-increment-in-one-round-trip shape, adapted from a token
// bucket to a bounded counter.
const acquireScannerSlotScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if current < max then
  local new = redis.call('INCR', KEYS[1])
  if new == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
  end
  return {1, new}
end
return {0, current}
`

// releaseScannerSlotScript decrements the inflight gauge, floored at zero
// so a duplicate release (e.g. after a redelivered task) never goes negative.
const releaseScannerSlotScript = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`

// ScannerSlots mediates the DSXA backpressure gauge described in spec.md §4.A.
type ScannerSlots struct {
	store       *Store
	maxInflight int64
	inflightTTL int64
}

// NewScannerSlots registers both scanner-slot scripts against store.
func NewScannerSlots(store *Store, maxInflight int64) *ScannerSlots {
	store.RegisterScript(acquireScannerSlotScript)
	store.RegisterScript(releaseScannerSlotScript)
	return &ScannerSlots{
		store:       store,
		maxInflight: maxInflight,
		inflightTTL: int64(domain.InflightKeyTTL.Seconds()),
	}
}

// Acquire attempts to reserve one scanner slot. acquired is false when the
// gauge is already at maxInflight; observedInflight is the gauge value
// either way, useful for contention logging.
func (s *ScannerSlots) Acquire(ctx context.Context) (acquired bool, observedInflight int64, err error) {
	sc := s.store.RegisterScript(acquireScannerSlotScript)
	res, err := s.store.RunScript(ctx, sc, []string{domain.InflightKey}, s.maxInflight, s.inflightTTL)
	if err != nil {
		return false, 0, fmt.Errorf("op=ScannerSlots.Acquire: %w", err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("op=ScannerSlots.Acquire: unexpected script result %v", res)
	}
	acquiredFlag, _ := vals[0].(int64)
	observed, _ := vals[1].(int64)
	return acquiredFlag == 1, observed, nil
}

// Release unconditionally returns one slot to the gauge. Callers invoke this
// in a deferred/always-release block regardless of how the scan concluded.
func (s *ScannerSlots) Release(ctx context.Context) error {
	sc := s.store.RegisterScript(releaseScannerSlotScript)
	if _, err := s.store.RunScript(ctx, sc, []string{domain.InflightKey}); err != nil {
		return fmt.Errorf("op=ScannerSlots.Release: %w", err)
	}
	return nil
}

// Observed reads the current inflight gauge value without mutating it, used
// by dsxctl's /scanner/inflight endpoint.
func (s *ScannerSlots) Observed(ctx context.Context) (int64, error) {
	v, err := s.store.Get(ctx, domain.InflightKey)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, nil
	}
	return n, nil
}
