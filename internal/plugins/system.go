package plugins

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// Measurement fragments and the restart operation fragment.
const (
	FragmentMemory  = "c8y_MemoryMeasurement"
	FragmentCPU     = "c8y_CPUMeasurement"
	FragmentRestart = "c8y_Restart"
)

const bytesPerMB = 1 << 20

// SystemOptions overrides the system handler's collaborators.
// Nil fields select the gopsutil collectors and a restart that only logs.
type SystemOptions struct {
	Memory  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	CPU     func(ctx context.Context, interval time.Duration, perCPU bool) ([]float64, error)
	Restart func(ctx context.Context) error
}

// System reports host memory and CPU usage and acknowledges restarts.
type System struct {
	env  capability.Env
	opts SystemOptions
}

// NewSystem returns the system handler.
func NewSystem(env capability.Env, opts SystemOptions) *System {
	if opts.Memory == nil {
		opts.Memory = mem.VirtualMemoryWithContext
	}
	if opts.CPU == nil {
		opts.CPU = cpu.PercentWithContext
	}
	return &System{env: env, opts: opts}
}

// Measurements samples memory and CPU. A failing collector is skipped; the
// call fails only when both fail.
func (s *System) Measurements(ctx context.Context) ([]capability.Measurement, error) {
	var out []capability.Measurement
	var errs []error

	if vm, err := s.opts.Memory(ctx); err != nil {
		errs = append(errs, err)
	} else {
		out = append(out,
			capability.Measurement{Fragment: FragmentMemory, Series: "Used", Value: float64(vm.Used) / bytesPerMB, Unit: "MB"},
			capability.Measurement{Fragment: FragmentMemory, Series: "Total", Value: float64(vm.Total) / bytesPerMB, Unit: "MB"},
		)
	}

	// Interval 0 compares against the previous call.
	if pct, err := s.opts.CPU(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(pct) > 0 {
		out = append(out, capability.Measurement{Fragment: FragmentCPU, Series: "Workload", Value: pct[0], Unit: "%"})
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// SupportedOperations implements capability.Listener.
func (s *System) SupportedOperations() []string {
	return []string{FragmentRestart}
}

// SupportedTemplates implements capability.Listener.
func (s *System) SupportedTemplates() []string { return nil }

// HandleOperation acknowledges 510 restart requests addressed to this device.
func (s *System) HandleOperation(ctx context.Context, msg smartrest.Message) error {
	if msg.ID != smartrest.MsgRestart || msg.Field(0) != s.env.Identity.Serial {
		return nil
	}

	if err := s.env.Publisher.Publish(smartrest.Executing(FragmentRestart), 0); err != nil {
		return err
	}

	s.env.Logger.Info("restart requested")
	if s.opts.Restart != nil {
		if err := s.opts.Restart(ctx); err != nil {
			s.env.Logger.Warn("restart failed", "error", err)
			return s.env.Publisher.Publish(smartrest.Failed(FragmentRestart, err.Error()), 0)
		}
	}
	return s.env.Publisher.Publish(smartrest.Successful(FragmentRestart), 0)
}
