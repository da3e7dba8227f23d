package cache

import (
	"fmt"
	"time"
)

// EvictionPolicy controls what gets evicted from the cache.
type EvictionPolicy struct {
	MaxAgeDays int     // Delete entries not used for this long (default: 30)
	MaxSizeMB  float64 // Delete least recently used until under this (default: 500)
}

// DefaultEvictionPolicy returns the default eviction policy.
func DefaultEvictionPolicy() EvictionPolicy {
	return EvictionPolicy{
		MaxAgeDays: 30,
		MaxSizeMB:  500,
	}
}

// EvictionResult contains statistics about an eviction run.
type EvictionResult struct {
	EvictedEntries []string // Keys of evicted entries
	FreedMB        float64  // Total size freed in MB
	RemainingMB    float64  // Total size after eviction
	Duration       time.Duration
}

// Evict removes stale entries from the cache.
//
// Eviction criteria (in order):
//  1. Entries not accessed within MaxAgeDays
//  2. Least recently used entries while the total size exceeds MaxSizeMB
//
// A zero limit disables that criterion.
func (d *DB) Evict(policy EvictionPolicy) (*EvictionResult, error) {
	startTime := time.Now()

	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}

	var totalMB float64
	for _, e := range entries {
		totalMB += bytesToMB(e.SizeBytes)
	}

	result := &EvictionResult{EvictedEntries: []string{}}
	now := d.now()

	// Entries is most recently used first; walk from the oldest.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		shouldEvict := false

		if policy.MaxAgeDays > 0 {
			if now.Sub(e.AccessedAt) > time.Duration(policy.MaxAgeDays)*24*time.Hour {
				shouldEvict = true
			}
		}

		if !shouldEvict && policy.MaxSizeMB > 0 && totalMB > policy.MaxSizeMB {
			shouldEvict = true
		}

		if !shouldEvict {
			continue
		}

		if err := d.delete(e.Key); err != nil {
			return nil, fmt.Errorf("failed to evict: %w", err)
		}
		sizeMB := bytesToMB(e.SizeBytes)
		totalMB -= sizeMB
		result.EvictedEntries = append(result.EvictedEntries, e.Key)
		result.FreedMB += sizeMB
	}

	result.RemainingMB = totalMB
	result.Duration = time.Since(startTime)
	return result, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	SizeMB  float64
	ByStage map[string]int
}

// Stats returns entry counts and size.
func (d *DB) Stats() (*Stats, error) {
	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}
	stats := &Stats{Entries: len(entries), ByStage: make(map[string]int)}
	for _, e := range entries {
		stats.SizeMB += bytesToMB(e.SizeBytes)
		stats.ByStage[e.Stage]++
	}
	return stats, nil
}

func bytesToMB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
