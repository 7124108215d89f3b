// Package store is the persistence gateway (spec §6.3, component B): three
// logical tables — workers, process_ids, user_profiles — backed by an
// embedded nutsdb database. The core only ever needs reader-safe concurrent
// reads and serialized writes, the same property nabbar/golib's own nutsdb
// component wrapper (config/components/nutsdb) relies on; this package talks
// to github.com/nutsdb/nutsdb directly rather than through that heavier
// component-framework abstraction, matching the teacher's preference for
// talking to a dependency directly (internal/mcp/client.go wraps mcp-go's
// client package with no intermediate framework either).
package store

import (
	"encoding/json"
	"fmt"

	"github.com/nutsdb/nutsdb"
	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

const (
	bucketWorkers      = "workers"
	bucketProcessIDs   = "process_ids"
	bucketUserProfiles = "user_profiles"
)

// Gateway is the persistence interface the supervisor and profile manager
// consume (spec §6.3's "persistence interface" contract).
type Gateway interface {
	SaveWorker(cfg worker.WorkerConfig) error
	DeleteWorker(name string) error
	ListWorkers() ([]worker.WorkerConfig, error)

	SaveProcessID(name string, pid int) error
	ListProcessIDs() (map[string]int, error)
	ClearProcessIDs() error

	SaveProfile(p worker.ProfileBundle) error
	DeleteProfile(name string) error
	ListProfiles() ([]worker.ProfileBundle, error)

	Close() error
}

// NutsGateway implements Gateway over an embedded nutsdb database.
type NutsGateway struct {
	db  *nutsdb.DB
	log *zap.SugaredLogger
}

// Open creates or opens the nutsdb database rooted at dir.
func Open(dir string, log *zap.SugaredLogger) (*NutsGateway, error) {
	opt := nutsdb.DefaultOptions
	opt.Dir = dir
	db, err := nutsdb.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("store: open nutsdb at %q: %w", dir, err)
	}
	return &NutsGateway{db: db, log: log}, nil
}

func (g *NutsGateway) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

// SaveWorker persists a WorkerConfig keyed by name. Callers are responsible
// for the "derived instances are never persisted" filter (spec §9 Open
// Question) — this layer persists whatever config it is handed.
func (g *NutsGateway) SaveWorker(cfg worker.WorkerConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: marshal worker %q: %w", cfg.Name, err)
	}
	return g.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketWorkers, []byte(cfg.Name), data, 0)
	})
}

func (g *NutsGateway) DeleteWorker(name string) error {
	return g.db.Update(func(tx *nutsdb.Tx) error {
		err := tx.Delete(bucketWorkers, []byte(name))
		if err != nil && err != nutsdb.ErrKeyNotFound && err != nutsdb.ErrBucketNotFound {
			return err
		}
		return nil
	})
}

func (g *NutsGateway) ListWorkers() ([]worker.WorkerConfig, error) {
	var out []worker.WorkerConfig
	err := g.db.View(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucketWorkers)
		if err == nutsdb.ErrBucketNotFound || err == nutsdb.ErrBucketEmpty {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			var cfg worker.WorkerConfig
			if jsonErr := json.Unmarshal(e.Value, &cfg); jsonErr != nil {
				g.log.Warnf("store: skip corrupt worker record %q: %v", string(e.Key), jsonErr)
				continue
			}
			out = append(out, cfg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list workers: %w", err)
	}
	return out, nil
}

func (g *NutsGateway) SaveProcessID(name string, pid int) error {
	return g.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketProcessIDs, []byte(name), []byte(fmt.Sprintf("%d", pid)), 0)
	})
}

func (g *NutsGateway) ListProcessIDs() (map[string]int, error) {
	out := make(map[string]int)
	err := g.db.View(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucketProcessIDs)
		if err == nutsdb.ErrBucketNotFound || err == nutsdb.ErrBucketEmpty {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			var pid int
			if _, scanErr := fmt.Sscanf(string(e.Value), "%d", &pid); scanErr != nil {
				continue
			}
			out[string(e.Key)] = pid
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list process ids: %w", err)
	}
	return out, nil
}

// ClearProcessIDs empties the process_ids table. Called by the supervisor
// after orphan cleanup at startup, before any worker is re-declared (spec
// §6.3: "the PID table is empty before restoration begins").
func (g *NutsGateway) ClearProcessIDs() error {
	return g.db.Update(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucketProcessIDs)
		if err == nutsdb.ErrBucketNotFound || err == nutsdb.ErrBucketEmpty {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if delErr := tx.Delete(bucketProcessIDs, e.Key); delErr != nil {
				return delErr
			}
		}
		return nil
	})
}

func (g *NutsGateway) SaveProfile(p worker.ProfileBundle) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal profile %q: %w", p.Name, err)
	}
	return g.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketUserProfiles, []byte(p.Name), data, 0)
	})
}

func (g *NutsGateway) DeleteProfile(name string) error {
	return g.db.Update(func(tx *nutsdb.Tx) error {
		err := tx.Delete(bucketUserProfiles, []byte(name))
		if err != nil && err != nutsdb.ErrKeyNotFound && err != nutsdb.ErrBucketNotFound {
			return err
		}
		return nil
	})
}

func (g *NutsGateway) ListProfiles() ([]worker.ProfileBundle, error) {
	var out []worker.ProfileBundle
	err := g.db.View(func(tx *nutsdb.Tx) error {
		entries, err := tx.GetAll(bucketUserProfiles)
		if err == nutsdb.ErrBucketNotFound || err == nutsdb.ErrBucketEmpty {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			var p worker.ProfileBundle
			if jsonErr := json.Unmarshal(e.Value, &p); jsonErr != nil {
				g.log.Warnf("store: skip corrupt profile record %q: %v", string(e.Key), jsonErr)
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	return out, nil
}
