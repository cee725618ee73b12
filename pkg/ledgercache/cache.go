package ledgercache

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/kloros-colony/fabric/pkg/ledger"
	"github.com/kloros-colony/fabric/pkg/metrics"
	"github.com/kloros-colony/fabric/pkg/types"
)

var (
	bucketFitness      = []byte("fitness")
	bucketPressure     = []byte("pressure")
	bucketObservations = []byte("observations")
)

// observationsKey is the only key ever stored in bucketObservations:
// RecentObservationsAll has no per-zooid/niche axis to shard by, so one
// cached window covers every caller and is dropped wholesale on the
// next ledger append.
var observationsKey = []byte("all")

// Cache wraps pkg/ledger's scan-based query functions with a bbolt-backed
// read-through cache. Fitness entries are keyed by zooid and window,
// pressure entries by ecosystem, niche and window; the query time is not
// part of any key, and RecentObservationsAll keeps a single entry
// whatever its arguments.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the cache file at path and ensures its buckets
// exist.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledgercache: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFitness); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPressure); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketObservations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ledgercache: create buckets: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying bbolt file.
func (c *Cache) Close() error {
	return c.db.Close()
}

func fitnessKey(zooid string, windowS float64) []byte {
	return []byte(fmt.Sprintf("%s|%v", zooid, windowS))
}

func pressureKey(ecosystem, niche string, windowS float64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%v", ecosystem, niche, windowS))
}

// GetRecentFitness returns a cached summary when present, else computes
// it via pkg/ledger, caches it, and returns it.
func (c *Cache) GetRecentFitness(ledgerPath, zooid string, now, windowS float64) (ledger.FitnessSummary, error) {
	key := fitnessKey(zooid, windowS)

	var cached ledger.FitnessSummary
	var hit bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFitness).Get(key)
		if v == nil {
			return nil
		}
		hit = json.Unmarshal(v, &cached) == nil
		return nil
	})
	if err != nil {
		return ledger.FitnessSummary{}, fmt.Errorf("ledgercache: read: %w", err)
	}
	if hit {
		metrics.LedgerCacheLookupsTotal.WithLabelValues("fitness", "hit").Inc()
		return cached, nil
	}
	metrics.LedgerCacheLookupsTotal.WithLabelValues("fitness", "miss").Inc()

	summary, err := ledger.GetRecentFitness(ledgerPath, zooid, now, windowS)
	if err != nil {
		return ledger.FitnessSummary{}, err
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		return summary, fmt.Errorf("ledgercache: marshal: %w", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFitness).Put(key, raw)
	})
	if err != nil {
		return summary, fmt.Errorf("ledgercache: write: %w", err)
	}
	return summary, nil
}

// ComputeNichePressure returns a cached pressure value when present,
// else computes, caches, and returns it.
func (c *Cache) ComputeNichePressure(ledgerPath, ecosystem, niche string, now, windowS float64) (float64, error) {
	key := pressureKey(ecosystem, niche, windowS)

	var cached float64
	var hit bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPressure).Get(key)
		if v == nil {
			return nil
		}
		hit = json.Unmarshal(v, &cached) == nil
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ledgercache: read: %w", err)
	}
	if hit {
		metrics.LedgerCacheLookupsTotal.WithLabelValues("pressure", "hit").Inc()
		return cached, nil
	}
	metrics.LedgerCacheLookupsTotal.WithLabelValues("pressure", "miss").Inc()

	pressure, err := ledger.ComputeNichePressure(ledgerPath, ecosystem, niche, now, windowS)
	if err != nil {
		return 0, err
	}

	raw, err := json.Marshal(pressure)
	if err != nil {
		return pressure, fmt.Errorf("ledgercache: marshal: %w", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPressure).Put(key, raw)
	})
	if err != nil {
		return pressure, fmt.Errorf("ledgercache: write: %w", err)
	}
	return pressure, nil
}

// RecentObservationsAll returns a cached copy of
// ledger.RecentObservationsAll's result when present, else computes,
// caches, and returns it. The cache entry is invalidated wholesale by
// InvalidateAll, so the caller is responsible for calling it (wired
// through pkg/ledger.Writer.OnAppend) whenever the ledger gains a row.
func (c *Cache) RecentObservationsAll(ledgerPath string, now, windowS float64) ([]types.Observation, error) {
	var cached []types.Observation
	var hit bool
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketObservations).Get(observationsKey)
		if v == nil {
			return nil
		}
		hit = json.Unmarshal(v, &cached) == nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledgercache: read: %w", err)
	}
	if hit {
		metrics.LedgerCacheLookupsTotal.WithLabelValues("observations", "hit").Inc()
		return cached, nil
	}
	metrics.LedgerCacheLookupsTotal.WithLabelValues("observations", "miss").Inc()

	rows, err := ledger.RecentObservationsAll(ledgerPath, now, windowS)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return rows, fmt.Errorf("ledgercache: marshal: %w", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObservations).Put(observationsKey, raw)
	})
	if err != nil {
		return rows, fmt.Errorf("ledgercache: write: %w", err)
	}
	return rows, nil
}

// InvalidateAll drops the cached RecentObservationsAll window. Every
// ledger append can add a row inside any caller's window regardless of
// zooid or niche, so unlike InvalidateZooid/InvalidateNiche this has
// no narrower scope to target.
func (c *Cache) InvalidateAll() error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObservations)
		if v := b.Get(observationsKey); v == nil {
			return nil
		}
		return b.Delete(observationsKey)
	})
	if err != nil {
		return fmt.Errorf("ledgercache: invalidate observations: %w", err)
	}
	metrics.LedgerCacheInvalidationsTotal.Inc()
	return nil
}

// InvalidateZooid drops every cached fitness entry for zooid,
// regardless of which window it was computed over.
func (c *Cache) InvalidateZooid(zooid string) error {
	return c.deletePrefix(bucketFitness, zooid+"|")
}

// InvalidateNiche drops every cached pressure entry touching niche,
// regardless of ecosystem or window.
func (c *Cache) InvalidateNiche(niche string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPressure)
		cur := b.Cursor()
		var stale [][]byte
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if containsNicheSegment(string(k), niche) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			metrics.LedgerCacheInvalidationsTotal.Inc()
		}
		return nil
	})
}

func (c *Cache) deletePrefix(bucket []byte, prefix string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		cur := b.Cursor()
		var stale [][]byte
		p := []byte(prefix)
		for k, _ := cur.Seek(p); k != nil && hasPrefix(k, p); k, _ = cur.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			metrics.LedgerCacheInvalidationsTotal.Inc()
		}
		return nil
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// containsNicheSegment reports whether key's "ecosystem|niche|window"
// shape has niche as its middle segment.
func containsNicheSegment(key, niche string) bool {
	first := -1
	second := -1
	for i, r := range key {
		if r == '|' {
			if first == -1 {
				first = i
			} else {
				second = i
				break
			}
		}
	}
	if first == -1 || second == -1 {
		return false
	}
	return key[first+1:second] == niche
}
