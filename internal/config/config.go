/*
Package config loads the TOML file describing the router's resolver pools and the path to the
authoritative zone-cache database. It follows the same BurntSushi/toml decode-into-tagged-struct
approach used elsewhere for this kind of small, operator-edited configuration.

A resolver pool entry is a plain "ip" or "ip:port" string; entries that don't parse as IPv4 are
dropped - logged by the caller, not here - mirroring the router's own silent-drop contract for
unparseable resolver entries.
*/
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/mesosphere/spartan-relay/internal/router"
)

// ResolversConfig holds the three named resolver pools as raw strings, as they appear in the TOML
// file, before being parsed into router.UpstreamEndpoint values.
type ResolversConfig struct {
	Mesos   []string `toml:"mesos"`
	Spartan []string `toml:"spartan"` // also used for the "zk" suffix
	Public  []string `toml:"public"`
}

// ZoneCacheConfig names the on-disk bbolt database backing the authoritative-zone lookup.
type ZoneCacheConfig struct {
	Path string `toml:"path"`
}

// Config is the top-level shape of the resolver-pool / zone-cache TOML file.
type Config struct {
	Resolvers ResolversConfig `toml:"resolvers"`
	ZoneCache ZoneCacheConfig `toml:"zone_cache"`
}

// Load decodes the TOML file at path into a Config.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// Pools parses the raw resolver-pool strings into router.Pools, dropping unparseable entries and
// falling back to router.DefaultPublicPool when no public pool was configured. The list of dropped
// entries is returned so the caller can log them.
func (c *Config) Pools() (router.Pools, []string) {
	var dropped []string

	parse := func(raw []string) []router.UpstreamEndpoint {
		out := make([]router.UpstreamEndpoint, 0, len(raw))
		for _, r := range raw {
			ep, ok := router.ParseEndpoint(r)
			if !ok {
				dropped = append(dropped, r)
				continue
			}
			out = append(out, ep)
		}
		return out
	}

	pools := router.Pools{
		Mesos:   parse(c.Resolvers.Mesos),
		Spartan: parse(c.Resolvers.Spartan),
		Public:  parse(c.Resolvers.Public),
	}
	if len(pools.Public) == 0 {
		pools.Public = router.DefaultPublicPool
	}

	return pools, dropped
}
