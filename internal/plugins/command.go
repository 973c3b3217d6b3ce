package plugins

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// FragmentCommand is the operation fragment for shell commands.
const FragmentCommand = "c8y_Command"

// maxOutput caps the command output reported back.
const maxOutput = 16 << 10

// Command runs shell commands sent as 511 operations.
type Command struct {
	env      capability.Env
	provider *config.Provider
}

// NewCommand returns the command handler. Shell and timeout are read from
// the configuration on every operation.
func NewCommand(env capability.Env, provider *config.Provider) *Command {
	return &Command{env: env, provider: provider}
}

// SupportedOperations implements capability.Listener.
func (c *Command) SupportedOperations() []string {
	return []string{FragmentCommand}
}

// SupportedTemplates implements capability.Listener.
func (c *Command) SupportedTemplates() []string { return nil }

// HandleOperation runs the command of a 511 message addressed to this device.
func (c *Command) HandleOperation(ctx context.Context, msg smartrest.Message) error {
	if msg.ID != smartrest.MsgCommand || msg.Field(0) != c.env.Identity.Serial {
		return nil
	}

	opID := uuid.NewString()
	text := strings.Join(msg.Fields[1:], ",")

	if err := c.env.Publisher.Publish(smartrest.Executing(FragmentCommand), 0); err != nil {
		return err
	}

	cfg := c.provider.Current()
	c.env.Logger.Info("running command", "operation_id", opID, "shell", cfg.Plugins.Command.Shell)

	output, err := run(ctx, cfg.Plugins.Command.Shell, text, cfg.GetCommandTimeout())
	if err != nil {
		c.env.Logger.Warn("command failed", "operation_id", opID, "error", err)
		return c.env.Publisher.Publish(smartrest.Failed(FragmentCommand, err.Error()), 0)
	}

	c.env.Logger.Debug("command finished", "operation_id", opID, "bytes", len(output))
	return c.env.Publisher.Publish(smartrest.Successful(FragmentCommand, output), 0)
}

// run executes text with shell -c and returns its trimmed combined output.
func run(ctx context.Context, shell, text string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty command")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", text) //nolint:gosec // Commands come from the device's own tenant
	// Children of the shell may keep the output pipe open after it is killed.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	output = truncate(output, maxOutput)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("timed out after %v", timeout)
	}
	if err != nil {
		if output != "" {
			return "", fmt.Errorf("%w: %s", err, output)
		}
		return "", err
	}
	return output, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
