package config

import (
	"os"
	"sort"

	"github.com/justapithecus/quarry-depot/types"
)

// Config represents a quarry-depot.yaml configuration file: depot root
// path, default remote, remote auth material, proxy pools, and resource
// limits for the scheduler. All values are optional; CLI flags and the
// recognized environment variables override config file values (spec §6,
// §3.1).
type Config struct {
	DepotRoot     string                     `yaml:"depot_root"`
	ProjectName   string                     `yaml:"project_name"`
	DefaultRemote string                     `yaml:"default_remote"`
	Remotes       map[string]RemoteConfig    `yaml:"remotes"`
	Proxies       map[string]ProxyPoolConfig `yaml:"proxies"`
	Limits        map[string]int             `yaml:"limits"`
	ObjectStore   *ObjectStoreConfig         `yaml:"object_store,omitempty"`
}

// ObjectStoreConfig selects the depot's blob backend. Kind "fs" (the
// default, used when this is omitted) keeps blobs under the depot root;
// kind "s3" routes them to an S3-compatible bucket instead (spec §4.H).
type ObjectStoreConfig struct {
	Kind         string `yaml:"kind"` // "fs" or "s3"
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RemoteConfig describes one named remote target.
type RemoteConfig struct {
	Kind string `yaml:"kind"` // "ssh" or "local"
	Addr string `yaml:"addr"`
	User string `yaml:"user"`
	Auth string `yaml:"auth"` // path to a secret file, or inline user:pass/key ref
	Path string `yaml:"path"` // remote path to the project's depot root
}

// ProxyPoolConfig is a proxy pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy      types.ProxyStrategy   `yaml:"strategy"`
	Endpoints     []types.ProxyEndpoint `yaml:"endpoints"`
	Sticky        *types.ProxySticky    `yaml:"sticky,omitempty"`
	RecencyWindow *int                  `yaml:"recency_window,omitempty"`
}

// Env var names recognized by ApplyEnv (spec §6).
const (
	EnvDepotRoot     = "QUARRY_DEPOT_ROOT"
	EnvDefaultRemote = "QUARRY_DEFAULT_REMOTE"
	EnvRemoteAuth    = "QUARRY_REMOTE_AUTH"
)

// ApplyEnv overlays recognized environment variables onto cfg, taking
// precedence over whatever the YAML file set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvDepotRoot); ok {
		c.DepotRoot = v
	}
	if v, ok := os.LookupEnv(EnvDefaultRemote); ok {
		c.DefaultRemote = v
	}
	if v, ok := os.LookupEnv(EnvRemoteAuth); ok && c.DefaultRemote != "" {
		if remote, ok := c.Remotes[c.DefaultRemote]; ok {
			remote.Auth = v
			c.Remotes[c.DefaultRemote] = remote
		}
	}
}

// ProxyPools converts the map-keyed proxy pool config into a sorted slice
// of types.ProxyPool. Sorting by name ensures deterministic ordering.
func (c *Config) ProxyPools() []types.ProxyPool {
	if len(c.Proxies) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Proxies))
	for name := range c.Proxies {
		names = append(names, name)
	}
	sort.Strings(names)

	pools := make([]types.ProxyPool, 0, len(names))
	for _, name := range names {
		pc := c.Proxies[name]
		pools = append(pools, types.ProxyPool{
			Name:          name,
			Strategy:      pc.Strategy,
			Endpoints:     pc.Endpoints,
			Sticky:        pc.Sticky,
			RecencyWindow: pc.RecencyWindow,
		})
	}
	return pools
}
