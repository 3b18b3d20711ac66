package hyperv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureArgs(output string, err error) (RunFunc, *[]string) {
	captured := &[]string{}
	return func(ctx context.Context, bin string, args []string) (string, error) {
		*captured = args
		return output, err
	}, captured
}

func TestListNames(t *testing.T) {
	t.Run("multiple names", func(t *testing.T) {
		run, args := captureArgs("VM-Test-01\r\n  VM-Test-02  \n\nVM-Test-03", nil)
		tool := NewWithRunner(run, 0)

		names, err := tool.ListNames(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"VM-Test-01", "VM-Test-02", "VM-Test-03"}, names)
		assert.Contains(t, (*args)[len(*args)-1], "Get-VM")
		assert.Equal(t, []string{"-NoProfile", "-ExecutionPolicy", "Bypass"}, (*args)[:3])
	})

	t.Run("empty output", func(t *testing.T) {
		run, _ := captureArgs("", nil)
		names, err := NewWithRunner(run, 0).ListNames(context.Background())
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("tool failure", func(t *testing.T) {
		run, _ := captureArgs("", errors.New("Get-VM : access denied"))
		_, err := NewWithRunner(run, 0).ListNames(context.Background())
		require.Error(t, err)
	})
}

func TestLifecycleCommands(t *testing.T) {
	tests := []struct {
		Name string
		Call func(*Tool) (string, error)
		Want string
	}{
		{
			Name: "start",
			Call: func(tool *Tool) (string, error) { return tool.Start(context.Background(), "VM-Test-01") },
			Want: `Start-VM -Name "VM-Test-01" -Confirm:$false`,
		},
		{
			Name: "stop",
			Call: func(tool *Tool) (string, error) { return tool.Stop(context.Background(), "VM-Test-01") },
			Want: `Stop-VM -Name "VM-Test-01" -Force -Confirm:$false`,
		},
		{
			Name: "restart",
			Call: func(tool *Tool) (string, error) { return tool.Restart(context.Background(), "VM-Test-01") },
			Want: `Restart-VM -Name "VM-Test-01" -Force -Confirm:$false`,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			run, args := captureArgs("done", nil)
			out, err := test.Call(NewWithRunner(run, 0))
			require.NoError(t, err)
			assert.Equal(t, "done", out)
			assert.Equal(t, test.Want, (*args)[len(*args)-1])
		})
	}
}

func TestReadCommands(t *testing.T) {
	t.Run("state", func(t *testing.T) {
		run, args := captureArgs("Running", nil)
		state, err := NewWithRunner(run, 0).State(context.Background(), "VM-Test-01")
		require.NoError(t, err)
		assert.Equal(t, "Running", state)
		assert.Equal(t, `(Get-VM -Name "VM-Test-01").State`, (*args)[len(*args)-1])
	})

	t.Run("details", func(t *testing.T) {
		run, args := captureArgs(`{"Name":"VM-Test-01"}`, nil)
		details, err := NewWithRunner(run, 0).Details(context.Background(), "VM-Test-01")
		require.NoError(t, err)
		assert.Equal(t, `{"Name":"VM-Test-01"}`, details)
		assert.Contains(t, (*args)[len(*args)-1], "ConvertTo-Json")
		assert.NotContains(t, (*args)[len(*args)-1], "-Confirm", "read commands don't support -Confirm")
	})
}

func TestTimeoutApplied(t *testing.T) {
	var deadline time.Time
	run := func(ctx context.Context, bin string, args []string) (string, error) {
		deadline, _ = ctx.Deadline()
		return "", nil
	}

	_, err := NewWithRunner(run, time.Second*5).State(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, deadline.IsZero(), "a deadline should be set")
	assert.WithinDuration(t, time.Now().Add(time.Second*5), deadline, time.Second)
}

func TestRunPowershell(t *testing.T) {
	// exercise the real runner against a shell stand-in
	t.Run("stdout preferred", func(t *testing.T) {
		out, err := runPowershell(context.Background(), "sh", []string{"-c", "echo from-stdout; echo from-stderr >&2"})
		require.NoError(t, err)
		assert.Equal(t, "from-stdout", out)
	})

	t.Run("stderr fallback", func(t *testing.T) {
		out, err := runPowershell(context.Background(), "sh", []string{"-c", "echo only-stderr >&2"})
		require.NoError(t, err)
		assert.Equal(t, "only-stderr", out)
	})

	t.Run("failure carries output", func(t *testing.T) {
		_, err := runPowershell(context.Background(), "sh", []string{"-c", "echo boom >&2; exit 1"})
		require.EqualError(t, err, "boom")
	})
}
