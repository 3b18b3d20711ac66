// Package hyperv wraps the external Hyper-V management tool. The gateway
// treats it as an opaque collaborator: commands go out through PowerShell
// and whatever comes back is passed along verbatim.
package hyperv

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RunFunc executes one PowerShell invocation and returns its output.
// Swappable so tests never touch a real hypervisor.
type RunFunc func(ctx context.Context, bin string, args []string) (string, error)

type Tool struct {
	bin     string
	timeout time.Duration
	run     RunFunc
}

func New(bin string, timeout time.Duration) *Tool {
	return &Tool{bin: bin, timeout: timeout, run: runPowershell}
}

// NewWithRunner is for tests.
func NewWithRunner(fn RunFunc, timeout time.Duration) *Tool {
	return &Tool{bin: "powershell", timeout: timeout, run: fn}
}

func (t *Tool) ListNames(ctx context.Context) ([]string, error) {
	out, err := t.exec(ctx, "Get-VM | Select-Object -ExpandProperty Name", false)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (t *Tool) State(ctx context.Context, name string) (string, error) {
	return t.exec(ctx, fmt.Sprintf(`(Get-VM -Name "%s").State`, name), false)
}

func (t *Tool) Details(ctx context.Context, name string) (string, error) {
	return t.exec(ctx, fmt.Sprintf(`Get-VM -Name "%s" | Select-Object Name,State,CPUUsage,MemoryAssigned,Uptime,Status | ConvertTo-Json`, name), false)
}

func (t *Tool) Start(ctx context.Context, name string) (string, error) {
	return t.exec(ctx, fmt.Sprintf(`Start-VM -Name "%s"`, name), true)
}

func (t *Tool) Stop(ctx context.Context, name string) (string, error) {
	return t.exec(ctx, fmt.Sprintf(`Stop-VM -Name "%s" -Force`, name), true)
}

func (t *Tool) Restart(ctx context.Context, name string) (string, error) {
	return t.exec(ctx, fmt.Sprintf(`Restart-VM -Name "%s" -Force`, name), true)
}

// exec runs one command with the tool's timeout applied. noConfirm appends
// -Confirm:$false, which only lifecycle verbs support.
func (t *Tool) exec(ctx context.Context, script string, noConfirm bool) (string, error) {
	if noConfirm {
		script += " -Confirm:$false"
	}
	if t.timeout > 0 {
		var done context.CancelFunc
		ctx, done = context.WithTimeout(ctx, t.timeout)
		defer done()
	}

	args := []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script}
	return t.run(ctx, t.bin, args)
}

func runPowershell(ctx context.Context, bin string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}
	if err != nil {
		if output != "" {
			return "", fmt.Errorf("%s", output)
		}
		return "", fmt.Errorf("running %s: %w", bin, err)
	}
	return output, nil
}
