package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
)

// Save appends a scan to the history. It assigns an ID when the scan has
// none and always stamps it with the store clock, mutating scan in place.
// bbolt serializes writers, so concurrent saves keep a total order.
func (s *Store) Save(ctx context.Context, scan *models.StoredScan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		scan.Timestamp = s.now().UTC()

		data, err := json.Marshal(scan)
		if err != nil {
			return err
		}

		scans := tx.Bucket([]byte(bucketScans))
		if err := scans.Put([]byte(scan.ID), data); err != nil {
			return err
		}

		index := tx.Bucket([]byte(bucketScanIndex))
		targetKey := []byte(scan.Target)

		ids, err := readIndex(index, targetKey)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == scan.ID {
				return nil
			}
		}
		ids = append(ids, scan.ID)

		indexData, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return index.Put(targetKey, indexData)
	})
	if err != nil {
		return scanerr.Wrap(scanerr.CodeStorage, "saving scan", err).WithTarget(scan.Target)
	}
	return nil
}

// Recent returns up to limit scans for target, newest first. Scans with
// equal timestamps are ordered by insertion, latest insert first. A limit
// of zero or less returns every scan.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]*models.StoredScan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scans := []*models.StoredScan{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := readIndex(tx.Bucket([]byte(bucketScanIndex)), []byte(target))
		if err != nil {
			return err
		}

		bucket := tx.Bucket([]byte(bucketScans))
		for i := len(ids) - 1; i >= 0; i-- {
			data := bucket.Get([]byte(ids[i]))
			if data == nil {
				continue
			}
			var scan models.StoredScan
			if err := json.Unmarshal(data, &scan); err != nil {
				return err
			}
			scans = append(scans, &scan)
		}
		return nil
	})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "reading scan history", err).WithTarget(target)
	}

	// Index order is insertion order; the stable sort only matters if the
	// clock moved backwards between saves.
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].Timestamp.After(scans[j].Timestamp)
	})

	if limit > 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

// Get retrieves a single scan by ID. It returns ErrNotFound when no scan
// has that ID.
func (s *Store) Get(ctx context.Context, id string) (*models.StoredScan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var scan *models.StoredScan
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketScans)).Get([]byte(id))
		if data == nil {
			return nil
		}
		scan = &models.StoredScan{}
		return json.Unmarshal(data, scan)
	})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "reading scan", err)
	}
	if scan == nil {
		return nil, scanerr.ErrNotFound
	}
	return scan, nil
}

// Targets lists every target with at least one stored scan, in key order.
func (s *Store) Targets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targets := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketScanIndex)).ForEach(func(k, _ []byte) error {
			targets = append(targets, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeStorage, "listing targets", err)
	}
	return targets, nil
}

func readIndex(index *bbolt.Bucket, key []byte) ([]string, error) {
	var ids []string
	existing := index.Get(key)
	if existing == nil {
		return ids, nil
	}
	if err := json.Unmarshal(existing, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
