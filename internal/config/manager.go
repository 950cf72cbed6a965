package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mothstation/internal/logger"
)

const envPrefix = "MOTHPI"

// ErrUnknownKey is returned by UpdateFromMap for keys the station does not know.
var ErrUnknownKey = errors.New("unknown configuration key")

// SearchPaths lists candidate configuration files; the first existing one wins.
// The last entry is the write-back target when none exists.
func SearchPaths() []string {
	home := homeDir()
	return []string{
		filepath.Join(home, ".config", "mothpi.conf"),
		filepath.Join(home, "mothpi.conf"),
		filepath.Join(home, ".config", "mothpi.yaml"),
		filepath.Join(home, ".mothpi"),
	}
}

// Manager owns the live configuration. Readers take copies via Current.
type Manager struct {
	mu    sync.RWMutex
	v     *viper.Viper
	cfg   Config
	path  string
	found bool
	log   *logger.Logger

	onChange []func(Config)
}

func newViper(d Config) *viper.Viper {
	v := viper.New()
	for key, val := range d.settings() {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// configType maps a file name to a viper decoder. Extension-less and .conf
// files hold JSON.
func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func findConfigFile(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads the configuration from path, or from the first existing search
// path when path is empty. Read failures fall back to defaults and are
// logged; Load itself never fails.
func Load(path string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{log: log}

	if path == "" {
		path = findConfigFile(SearchPaths())
	}
	v := newViper(Defaults())
	if path == "" {
		paths := SearchPaths()
		path = paths[len(paths)-1]
		log.Errorw("config_not_found", "searched", paths, "using", "defaults")
	} else if fileV, err := readFile(path); err != nil {
		log.Errorw("config_read_failed", "path", path, "err", err, "using", "defaults")
	} else {
		v = fileV
		m.found = true
		log.Infow("config_loaded", "path", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	m.path = path
	m.v = v

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Errorw("config_decode_failed", "path", path, "err", err, "using", "defaults")
		cfg = Defaults()
	}
	if !cfg.Validate() {
		log.Warnw("config_values_corrected", "path", path)
	}
	if cfg.Auth.SigningKey == "" {
		cfg.Auth.SigningKey = randomKey()
	}
	m.cfg = cfg

	if err := os.MkdirAll(cfg.PicturesSaveFolder, 0o755); err != nil {
		log.Errorw("pictures_folder_create_failed", "path", cfg.PicturesSaveFolder, "err", err)
	}
	return m
}

func readFile(path string) (*viper.Viper, error) {
	v := newViper(Defaults())
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func randomKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "mothpi-insecure-fallback-key"
	}
	return hex.EncodeToString(b)
}

// Current returns a copy of the live configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// Path is the file the configuration was read from and is saved to.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Found reports whether a configuration file was read at load time.
func (m *Manager) Found() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.found
}

// Settings returns the live configuration as flat keys (e.g. "http.port").
func (m *Manager) Settings() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.settings()
}

// OnChange registers fn to run after every accepted update or reload.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// UpdateFromMap applies a partial update. Unknown keys and values of the
// wrong type reject the whole update. Out-of-range values are replaced by
// defaults; accepted is false when that happened.
func (m *Manager) UpdateFromMap(values map[string]any) (accepted bool, err error) {
	m.mu.Lock()
	current := m.cfg.settings()
	for key := range values {
		if !knownKey(current, strings.ToLower(key)) {
			m.mu.Unlock()
			return false, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}

	cand := viper.New()
	for key, val := range current {
		cand.Set(key, val)
	}
	for key, val := range values {
		cand.Set(strings.ToLower(key), val)
	}
	var next Config
	if err := cand.Unmarshal(&next); err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("decode configuration update: %w", err)
	}
	accepted = next.Validate()
	if next.Auth.SigningKey == "" {
		next.Auth.SigningKey = m.cfg.Auth.SigningKey
	}
	m.cfg = next
	hooks := append([]func(Config){}, m.onChange...)
	m.mu.Unlock()

	if !accepted {
		m.log.Warnw("config_update_corrected", "keys", keysOf(values))
	} else {
		m.log.Infow("config_updated", "keys", keysOf(values))
	}
	for _, fn := range hooks {
		fn(next.clone())
	}
	return accepted, nil
}

func knownKey(current map[string]any, key string) bool {
	if _, ok := current[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "relais_conf.")
}

func keysOf(values map[string]any) []string {
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	return out
}

// Save writes the live configuration to Path. YAML for .yaml/.yml, JSON otherwise.
func (m *Manager) Save() error {
	m.mu.RLock()
	path := m.path
	doc := nest(m.cfg.settings())
	m.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	if configType(path) == "yaml" {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	m.log.Infow("config_saved", "path", path)
	return nil
}

// nest turns dotted keys into nested maps for the file encoders.
func nest(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, val := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = val
	}
	return out
}

// Watch reloads the configuration when the file changes on disk. No-op when
// no file was found at load time.
func (m *Manager) Watch() {
	m.mu.RLock()
	found, v := m.found, m.v
	m.mu.RUnlock()
	if !found {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		m.reload(e.Name)
	})
	v.WatchConfig()
}

func (m *Manager) reload(name string) {
	m.mu.Lock()
	var next Config
	if err := m.v.Unmarshal(&next); err != nil {
		m.mu.Unlock()
		m.log.Errorw("config_reload_failed", "path", name, "err", err)
		return
	}
	accepted := next.Validate()
	if next.Auth.SigningKey == "" {
		next.Auth.SigningKey = m.cfg.Auth.SigningKey
	}
	m.cfg = next
	hooks := append([]func(Config){}, m.onChange...)
	m.mu.Unlock()

	m.log.Infow("config_reloaded", "path", name, "accepted", accepted)
	for _, fn := range hooks {
		fn(next.clone())
	}
}
