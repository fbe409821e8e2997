package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mesosphere/spartan-relay/internal/router"
)

const testConfig = `
[resolvers]
mesos = ["10.0.0.1:53", "10.0.0.2"]
spartan = ["10.0.1.1:53"]
public = ["8.8.4.4:53", "bogus-entry"]

[zone_cache]
path = "zones.db"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spartan-relay.toml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTestConfig(t)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Resolvers.Mesos) != 2 {
		t.Error("expected two mesos entries, got", c.Resolvers.Mesos)
	}
	if c.ZoneCache.Path != "zones.db" {
		t.Error("expected zones.db, got", c.ZoneCache.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/spartan-relay.toml")
	if err == nil {
		t.Error("expected error loading a missing file")
	}
}

func TestPoolsParsesAndDropsBadEntries(t *testing.T) {
	path := writeTestConfig(t)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	pools, dropped := c.Pools()
	if len(pools.Mesos) != 2 {
		t.Error("expected two parsed mesos endpoints, got", pools.Mesos)
	}
	if len(pools.Public) != 1 {
		t.Error("expected one parsed public endpoint (bogus-entry dropped), got", pools.Public)
	}
	if len(dropped) != 1 || dropped[0] != "bogus-entry" {
		t.Error("expected bogus-entry to be reported dropped, got", dropped)
	}
}

func TestPoolsFallsBackToDefaultPublicPool(t *testing.T) {
	c := &Config{}
	pools, dropped := c.Pools()
	if len(dropped) != 0 {
		t.Error("expected nothing dropped from an empty config")
	}
	if len(pools.Public) != len(router.DefaultPublicPool) {
		t.Error("expected DefaultPublicPool fallback, got", pools.Public)
	}
}
