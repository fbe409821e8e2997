package zonecache

import (
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zones.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetAuthorityMiss(t *testing.T) {
	c := openTestCache(t)
	if c.GetAuthority("example.com.") {
		t.Error("expected a miss on an empty cache")
	}
}

func TestPutThenGetAuthority(t *testing.T) {
	c := openTestCache(t)
	if err := c.PutAuthority("example.com."); err != nil {
		t.Fatal(err)
	}
	if !c.GetAuthority("example.com.") {
		t.Error("expected a hit after PutAuthority")
	}
	if !c.GetAuthority("EXAMPLE.COM") { // case-insensitive, trailing dot optional
		t.Error("expected case-insensitive, dot-agnostic hit")
	}
}

func TestGetAuthorityMatchesSubdomainsOfAZone(t *testing.T) {
	c := openTestCache(t)
	if err := c.PutAuthority("example.com."); err != nil {
		t.Fatal(err)
	}
	if !c.GetAuthority("host.example.com.") {
		t.Error("expected authority over example.com. to cover host.example.com.")
	}
	if !c.GetAuthority("deeply.nested.host.example.com.") {
		t.Error("expected authority over example.com. to cover a multi-label subdomain")
	}
	if c.GetAuthority("notexample.com.") {
		t.Error("expected no hit for a sibling name sharing only a string suffix, not a label suffix")
	}
	if c.GetAuthority("com.") {
		t.Error("expected no hit for a parent zone of the recorded name")
	}
}

func TestRemoveAuthority(t *testing.T) {
	c := openTestCache(t)
	if err := c.PutAuthority("example.com."); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveAuthority("example.com."); err != nil {
		t.Fatal(err)
	}
	if c.GetAuthority("example.com.") {
		t.Error("expected a miss after RemoveAuthority")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.db")
	c1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.PutAuthority("foo.internal."); err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if !c2.GetAuthority("foo.internal.") {
		t.Error("expected authority to persist across reopen")
	}
}
