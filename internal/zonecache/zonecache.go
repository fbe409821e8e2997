/*
Package zonecache provides the router's authoritative-name lookup collaborator. Names recognized as
locally authoritative are persisted in a bbolt database so the set survives process restarts without
needing a round trip to whatever system of record populates it; a lookup walks the queried name's
labels up towards the root, checking each suffix against the bucket in turn, so that authority
recorded over a zone covers every name beneath it.
*/
package zonecache

import (
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketNames = []byte("names")

// Cache is a bbolt-backed store of authoritative zone names.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the bbolt database at path and ensures the names bucket exists.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNames)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// GetAuthority reports whether name (trailing dot optional, case-insensitive) or any zone it is a
// subdomain of is recorded as locally authoritative. It implements router.ZoneCache. Authority over
// a zone implies authority over every name beneath it, so "host.example.com" is a hit whenever
// "example.com" (or "com", or "host.example.com" itself) was recorded with PutAuthority - the lookup
// walks the name's labels from the full name up towards the root, stopping at the first match.
func (c *Cache) GetAuthority(name string) bool {
	labels := strings.Split(canonicalize(name), ".")

	found := false
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNames)
		if b == nil {
			return nil
		}
		for i := range labels {
			if b.Get([]byte(strings.Join(labels[i:], "."))) != nil {
				found = true
				return nil
			}
		}
		return nil
	})

	return found
}

// PutAuthority records name as locally authoritative.
func (c *Cache) PutAuthority(name string) error {
	key := canonicalize(name)
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNames)
		return b.Put([]byte(key), []byte{1})
	})
}

// RemoveAuthority un-records name, if present.
func (c *Cache) RemoveAuthority(name string) error {
	key := canonicalize(name)
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNames)
		return b.Delete([]byte(key))
	})
}

func canonicalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
