// Package kernel implements the Kernel Actuator (spec §4.2, §6.3): the
// side-effecting adapter that drives the host's Linux routing table by
// shelling out to the `ip route` command. This is the one component that
// deliberately stays on the standard library's os/exec rather than a
// netlink-socket library — see DESIGN.md for why.
package kernel

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/metrics"
	"github.com/yanizio/routemgr/internal/route"
)

// ErrAlreadyExists is the distinct idempotency signal for install: the
// kernel already has this destination installed. Callers (reconciler,
// API) treat it as success, never as a generic failure.
var ErrAlreadyExists = errors.New("kernel: route already exists")

// ErrNotPresent is the distinct idempotency signal for remove.
var ErrNotPresent = errors.New("kernel: route not present")

// alreadyExistsMarker is the literal stderr text spec §6.3 names.
const alreadyExistsMarker = "RTNETLINK answers: File exists"

// notPresentMarkers covers the ip(8) phrasings seen across kernel/iproute2
// versions for "nothing to delete".
var notPresentMarkers = []string{
	"No such process",
	"RTNETLINK answers: No such process",
	"Cannot find device",
}

// Actuator is the interface the reconciler and API layer depend on.
type Actuator interface {
	Install(ctx context.Context, rec route.Record) error
	Remove(ctx context.Context, to string) error
	Dump(ctx context.Context) ([]string, error)
}

// Runner abstracts subprocess execution so tests can substitute a fake
// without actually invoking ip(8). It mirrors exec.CommandContext's shape.
type Runner func(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)

// execRunner is the production Runner, shelling out with os/exec.
func execRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// IPRoute is the production Actuator, invoking `ip route ...`.
type IPRoute struct {
	run Runner
	log *zap.Logger
}

// New returns an IPRoute actuator that shells out via os/exec.
func New(log *zap.Logger) *IPRoute {
	return &IPRoute{run: execRunner, log: log}
}

// NewWithRunner is used by tests to inject a fake Runner.
func NewWithRunner(run Runner, log *zap.Logger) *IPRoute {
	return &IPRoute{run: run, log: log}
}

// Install adds rec to the kernel table, constructing the command from
// (to, via?, dev?) per spec §4.2. ErrAlreadyExists is returned, not a
// generic error, when the kernel reports the route already present.
func (a *IPRoute) Install(ctx context.Context, rec route.Record) error {
	args := []string{"route", "add", "to", rec.To}
	if rec.Via != nil && *rec.Via != "" {
		args = append(args, "via", *rec.Via)
	}
	if rec.Dev != nil && *rec.Dev != "" {
		args = append(args, "dev", *rec.Dev)
	}

	_, stderr, err := a.run(ctx, "ip", args...)
	if err == nil {
		metrics.KernelInstallTotal.WithLabelValues("success").Inc()
		a.log.Debug("route installed", zap.String("to", rec.To))
		return nil
	}
	if strings.Contains(stderr, alreadyExistsMarker) {
		metrics.KernelInstallTotal.WithLabelValues("already_exists").Inc()
		a.log.Debug("route already present in kernel", zap.String("to", rec.To))
		return ErrAlreadyExists
	}
	metrics.KernelInstallTotal.WithLabelValues("error").Inc()
	a.log.Error("ip route add failed", zap.String("to", rec.To), zap.String("stderr", stderr), zap.Error(err))
	return &execError{stderr: stderr, cause: err}
}

// Remove deletes the route to `to`. ErrNotPresent is returned when the
// kernel reports nothing matched — callers decide whether that is benign.
func (a *IPRoute) Remove(ctx context.Context, to string) error {
	_, stderr, err := a.run(ctx, "ip", "route", "del", "to", to)
	if err == nil {
		a.log.Debug("route removed", zap.String("to", to))
		return nil
	}
	for _, marker := range notPresentMarkers {
		if strings.Contains(stderr, marker) {
			a.log.Debug("route already absent from kernel", zap.String("to", to))
			return ErrNotPresent
		}
	}
	a.log.Error("ip route del failed", zap.String("to", to), zap.String("stderr", stderr), zap.Error(err))
	return &execError{stderr: stderr, cause: err}
}

// Dump returns `ip route show`'s output split into trimmed lines, for
// spec §4.5.6's system_routes field.
func (a *IPRoute) Dump(ctx context.Context) ([]string, error) {
	stdout, stderr, err := a.run(ctx, "ip", "route", "show")
	if err != nil {
		a.log.Error("ip route show failed", zap.String("stderr", stderr), zap.Error(err))
		return nil, &execError{stderr: stderr, cause: err}
	}
	var lines []string
	for _, l := range strings.Split(stdout, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines, nil
}

// execError wraps a failed ip(8) invocation with its stderr, so callers
// can surface the stderr message per spec §7 ("500 with the stderr
// message").
type execError struct {
	stderr string
	cause  error
}

func (e *execError) Error() string {
	if e.stderr != "" {
		return strings.TrimSpace(e.stderr)
	}
	return e.cause.Error()
}

func (e *execError) Unwrap() error { return e.cause }

var _ Actuator = (*IPRoute)(nil)
