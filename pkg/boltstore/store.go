package boltstore

import (
	"fmt"
	"os"
	"time"

	"github.com/crystal-mush/gotinytf/pkg/logging"
	"github.com/crystal-mush/gotinytf/pkg/tf"
	bbolt "go.etcd.io/bbolt"
)

// Store persists engine state snapshots in a bbolt database.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := meta.Get(keySchema); v != nil && keyToInt(v) != schemaVersion {
			return fmt.Errorf("schema version %d, want %d", keyToInt(v), schemaVersion)
		}
		if err := meta.Put(keySchema, seqToKey(schemaVersion)); err != nil {
			return err
		}
		for _, name := range stateBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init %s: %w", path, err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Save replaces the stored snapshot with st in a single transaction.
func (s *Store) Save(st tf.State) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		for _, name := range stateBuckets {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		b := tx.Bucket(bucketMacros)
		for i, d := range st.Macros {
			data, err := encode(d)
			if err != nil {
				return fmt.Errorf("encode macro %q: %w", d.Name, err)
			}
			if err := b.Put(seqToKey(i), data); err != nil {
				return err
			}
		}

		b = tx.Bucket(bucketVars)
		for _, v := range st.Vars {
			data, err := encode(v)
			if err != nil {
				return fmt.Errorf("encode var %q: %w", v.Name, err)
			}
			if err := b.Put([]byte(v.Name), data); err != nil {
				return err
			}
		}

		b = tx.Bucket(bucketHooks)
		for hook, names := range st.Hooks {
			data, err := encode(names)
			if err != nil {
				return fmt.Errorf("encode hook %s: %w", hook, err)
			}
			if err := b.Put([]byte(hook), data); err != nil {
				return err
			}
		}

		b = tx.Bucket(bucketKeys)
		for key, cmd := range st.Keys {
			if err := b.Put([]byte(key), []byte(cmd)); err != nil {
				return err
			}
		}

		stamp, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySavedAt, stamp)
	})
	if err != nil {
		return fmt.Errorf("boltstore: save: %w", err)
	}
	l := logging.GetLogger("boltstore")
	l.Debug().
		Int("macros", len(st.Macros)).Int("vars", len(st.Vars)).
		Msg("state saved")
	return nil
}

// Load reads the stored snapshot. An empty database yields an empty State.
func (s *Store) Load() (tf.State, error) {
	st := tf.State{
		Hooks: make(map[string][]string),
		Keys:  make(map[string]string),
	}
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketMacros).ForEach(func(k, v []byte) error {
			d, err := decode[tf.MacroDef](v)
			if err != nil {
				return fmt.Errorf("decode macro %d: %w", keyToInt(k), err)
			}
			st.Macros = append(st.Macros, d)
			return nil
		})
		if err != nil {
			return err
		}

		err = tx.Bucket(bucketVars).ForEach(func(k, v []byte) error {
			d, err := decode[tf.VarDef](v)
			if err != nil {
				return fmt.Errorf("decode var %s: %w", k, err)
			}
			st.Vars = append(st.Vars, d)
			return nil
		})
		if err != nil {
			return err
		}

		err = tx.Bucket(bucketHooks).ForEach(func(k, v []byte) error {
			names, err := decode[[]string](v)
			if err != nil {
				return fmt.Errorf("decode hook %s: %w", k, err)
			}
			st.Hooks[string(k)] = names
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketKeys).ForEach(func(k, v []byte) error {
			st.Keys[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return tf.State{}, fmt.Errorf("boltstore: load: %w", err)
	}
	return st, nil
}

// SavedAt returns when the snapshot was last saved, or the zero time if
// nothing has been saved.
func (s *Store) SavedAt() time.Time {
	var t time.Time
	s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keySavedAt); v != nil {
			t.UnmarshalBinary(v)
		}
		return nil
	})
	return t
}

// HasData returns true if a snapshot has been saved.
func (s *Store) HasData() bool {
	return !s.SavedAt().IsZero()
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		l := logging.GetLogger("boltstore")
		l.Info().Str("path", path).Msg("backup written")
		return nil
	})
}
