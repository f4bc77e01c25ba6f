package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

// AliasFile is the name of the alias file inside the config directory.
const AliasFile = "aliases"

// AliasConfig maps short launch names to identities. Each key is the name a
// launch was recorded under (for example the symlink appregistry-launch was
// invoked through) and the value is the identity whose counter it feeds.
type AliasConfig struct {
	Aliases map[string]identity.Key
}

// LoadAliases reads the aliases file at {dir}/aliases and returns the parsed
// config. If the file does not exist, an empty config is returned without an
// error. Lines that are malformed or name an invalid identity are skipped.
//
//	# name=package/class
//	mail=com.example.mail/.Inbox
func LoadAliases(dir string) (*AliasConfig, error) {
	cfg := &AliasConfig{
		Aliases: make(map[string]identity.Key),
	}

	f, err := os.Open(filepath.Join(dir, AliasFile))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip blank lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		alias := strings.TrimSpace(line[:idx])
		key, err := identity.Parse(line[idx+1:])
		if alias == "" || err != nil {
			continue
		}

		cfg.Aliases[alias] = key
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Resolve turns a recorded launch name into an identity. Canonical identity
// strings resolve to themselves; anything else is looked up as an alias.
func (c *AliasConfig) Resolve(name string) (identity.Key, bool) {
	name = strings.TrimSpace(name)
	if c != nil {
		if key, ok := c.Aliases[name]; ok {
			return key, true
		}
	}
	key, err := identity.Parse(name)
	if err != nil {
		return identity.Key{}, false
	}
	return key, true
}
