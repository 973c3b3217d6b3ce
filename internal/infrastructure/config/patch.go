package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownKey is returned when a patch names a key that cannot be
	// changed remotely.
	ErrUnknownKey = errors.New("config: key not editable")

	// ErrReadOnly is returned when patching a provider without a backing file.
	ErrReadOnly = errors.New("config: provider has no backing file")
)

// EditableKeys lists the dotted keys that may be changed at runtime.
var EditableKeys = []string{
	"agent.main_loop_interval",
	"agent.required_interval",
	"logging.level",
	"mqtt.token_refresh_interval",
	"plugins.command.timeout",
}

// EditableValues returns the current value of every editable key.
func (c *Config) EditableValues() map[string]string {
	return map[string]string{
		"agent.main_loop_interval":    strconv.Itoa(c.Agent.MainLoopInterval),
		"agent.required_interval":     strconv.Itoa(c.Agent.RequiredInterval),
		"logging.level":               c.Logging.Level,
		"mqtt.token_refresh_interval": strconv.Itoa(c.MQTT.TokenRefreshInterval),
		"plugins.command.timeout":     strconv.Itoa(c.Plugins.Command.Timeout),
	}
}

// Patch writes values into the backing file and makes the result current.
//
// Only EditableKeys are accepted. The patched document must load and
// validate before anything is written; the file is replaced atomically and
// keeps its comments and the keys the patch does not touch.
//
// Returns:
//   - error: ErrReadOnly, ErrUnknownKey, or a parse/validation/write failure
func (p *Provider) Patch(values map[string]string) error {
	if p.path == "" {
		return ErrReadOnly
	}
	for key := range values {
		if !slices.Contains(EditableKeys, key) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		setScalar(doc.Content[0], strings.Split(key, "."), values[key])
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return fmt.Errorf("parsing patched config: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := writeFileAtomic(p.path, out); err != nil {
		return err
	}

	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	p.current = cfg
	p.modTime = info.ModTime()
	return nil
}

// setScalar sets path under the mapping node m, creating mappings as needed.
func setScalar(m *yaml.Node, path []string, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != path[0] {
			continue
		}
		if len(path) == 1 {
			m.Content[i+1] = scalarNode(value)
			return
		}
		child := m.Content[i+1]
		if child.Kind != yaml.MappingNode {
			child = &yaml.Node{Kind: yaml.MappingNode}
			m.Content[i+1] = child
		}
		setScalar(child, path[1:], value)
		return
	}

	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: path[0]}
	if len(path) == 1 {
		m.Content = append(m.Content, key, scalarNode(value))
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, key, child)
	setScalar(child, path[1:], value)
}

func scalarNode(value string) *yaml.Node {
	tag := "!!str"
	if _, err := strconv.Atoi(value); err == nil {
		tag = "!!int"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
