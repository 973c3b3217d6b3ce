package plugins

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// FragmentConfiguration is the operation fragment for configuration updates.
const FragmentConfiguration = "c8y_Configuration"

// Configuration reports and applies the editable agent settings.
//
// The configuration text is one "key=value" line per editable key, sorted
// by key. Blank lines and lines starting with '#' are ignored on update.
type Configuration struct {
	env      capability.Env
	provider *config.Provider
}

// NewConfiguration returns the configuration handler.
func NewConfiguration(env capability.Env, provider *config.Provider) *Configuration {
	return &Configuration{env: env, provider: provider}
}

// Messages reports the current configuration once at registration.
func (c *Configuration) Messages() []smartrest.Message {
	return []smartrest.Message{c.report()}
}

// SupportedOperations implements capability.Listener.
func (c *Configuration) SupportedOperations() []string {
	return []string{FragmentConfiguration}
}

// SupportedTemplates implements capability.Listener.
func (c *Configuration) SupportedTemplates() []string { return nil }

// HandleOperation applies 513 configuration updates addressed to this device.
func (c *Configuration) HandleOperation(_ context.Context, msg smartrest.Message) error {
	if msg.ID != smartrest.MsgConfigurationUpdate || msg.Field(0) != c.env.Identity.Serial {
		return nil
	}

	if err := c.env.Publisher.Publish(smartrest.Executing(FragmentConfiguration), 0); err != nil {
		return err
	}

	// The text may itself contain commas; inbound splitting is naive.
	text := strings.Join(msg.Fields[1:], ",")
	values, err := ParseConfiguration(text)
	if err == nil {
		err = c.provider.Patch(values)
	}
	if err != nil {
		c.env.Logger.Warn("configuration update rejected", "error", err)
		return c.env.Publisher.Publish(smartrest.Failed(FragmentConfiguration, err.Error()), 0)
	}

	c.env.Logger.Info("configuration updated", "keys", len(values))
	if err := c.env.Publisher.Publish(c.report(), 0); err != nil {
		return err
	}
	return c.env.Publisher.Publish(smartrest.Successful(FragmentConfiguration), 0)
}

func (c *Configuration) report() smartrest.Message {
	return smartrest.New(smartrest.MsgConfiguration, RenderConfiguration(c.provider.Current().EditableValues()))
}

// RenderConfiguration formats values as sorted "key=value" lines.
func RenderConfiguration(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values[k])
	}
	return strings.Join(lines, "\n")
}

// ParseConfiguration parses "key=value" lines.
func ParseConfiguration(text string) (map[string]string, error) {
	values := make(map[string]string)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: expected key=value", i+1)
		}
		values[key] = strings.TrimSpace(value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no settings in configuration")
	}
	return values, nil
}
