package keystore

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/tlsrelay/pkg/security/secrets"
)

// StoreType is the on-disk format of a store file.
type StoreType string

const (
	// TypePKCS12 is a PKCS#12 archive (.p12, .pfx).
	TypePKCS12 StoreType = "PKCS12"

	// TypePEM is a concatenation of PEM blocks: certificates and at most one
	// unencrypted private key.
	TypePEM StoreType = "PEM"
)

// ParseStoreType parses a store type name case-insensitively. An empty name
// selects PKCS12.
func ParseStoreType(s string) (StoreType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PKCS12", "P12", "PFX":
		return TypePKCS12, nil
	case "PEM":
		return TypePEM, nil
	case "JKS", "JCEKS":
		return "", fmt.Errorf("store type %q is not supported, convert the store to PKCS12", s)
	default:
		return "", fmt.Errorf("unknown store type %q (expected PKCS12 or PEM)", s)
	}
}

// StoreConfig describes a store file and how to unlock it.
type StoreConfig struct {
	// Path is the store file location.
	Path string `yaml:"path"`

	// Type is the store format: PKCS12 (default) or PEM.
	Type StoreType `yaml:"type"`

	// Password unlocks the store. PasswordFile and PasswordEnv take
	// precedence over it, in that order.
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	PasswordEnv  string `yaml:"password_env"`

	// KeyPassword unlocks the private key. Defaults to the store password.
	KeyPassword     string `yaml:"key_password"`
	KeyPasswordFile string `yaml:"key_password_file"`

	// ReloadInterval is how long a loaded store is served before it is read
	// again. Zero or negative reloads on every access. An interval left unset
	// takes the configuration default.
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// Watch invalidates the cached store as soon as the file changes.
	Watch bool `yaml:"watch"`

	reloadIntervalSet bool
}

// UnmarshalYAML decodes the store and records whether reload_interval was
// present, so an explicit zero survives defaulting.
func (c *StoreConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain StoreConfig
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			if value.Content[i].Value == "reload_interval" {
				c.reloadIntervalSet = true
			}
		}
	}
	return nil
}

// SetReloadInterval sets the reload interval explicitly. A zero interval set
// this way is kept by defaulting.
func (c *StoreConfig) SetReloadInterval(d time.Duration) {
	c.ReloadInterval = d
	c.reloadIntervalSet = true
}

// HasReloadInterval reports whether the reload interval was configured,
// including an explicit zero.
func (c StoreConfig) HasReloadInterval() bool {
	return c.reloadIntervalSet || c.ReloadInterval != 0
}

// IsZero reports whether no store is configured.
func (c StoreConfig) IsZero() bool {
	return c.Path == ""
}

// Validate checks the store configuration.
func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if _, err := ParseStoreType(string(c.Type)); err != nil {
		return err
	}
	return nil
}

// PasswordRef returns a reference to the store password.
func (c StoreConfig) PasswordRef() secrets.Reference {
	return secrets.Reference{Value: c.Password, File: c.PasswordFile, Env: c.PasswordEnv}
}

// KeyPasswordRef returns a reference to the key password.
func (c StoreConfig) KeyPasswordRef() secrets.Reference {
	return secrets.Reference{Value: c.KeyPassword, File: c.KeyPasswordFile}
}
