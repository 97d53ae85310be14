package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/pkg/logger"
)

// ErrKillTimeout is returned when a worker outlives its kill wait
var ErrKillTimeout = errors.New("process did not exit within kill wait")

// SpawnSpec describes one worker process to start
type SpawnSpec struct {
	Role        domain.WorkerRole
	SourceURL   string
	Binary      string
	Args        []string
	Dir         string
	OutputLines int
}

// Process is a running external worker
type Process interface {
	Pid() int
	// Exited reports whether the process has terminated. It never blocks.
	Exited() bool
	// ExitErr is the wait error once Exited is true.
	ExitErr() error
	// Output returns the captured stdout and stderr lines.
	Output() []string
	// Kill stops the process group and waits at most wait for it to exit.
	Kill(wait time.Duration) error
}

// Spawner starts worker processes
type Spawner interface {
	Spawn(ctx context.Context, spec SpawnSpec) (Process, error)
}

// ExecSpawner starts workers with os/exec
type ExecSpawner struct{}

// Spawn starts the binary in its own process group with output captured
func (ExecSpawner) Spawn(ctx context.Context, spec SpawnSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The worker outlives the request that created it, so no CommandContext here.
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	setProcessGroup(cmd)

	output := NewLineRing(spec.OutputLines)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}

	p := &execProcess{
		cmd:    cmd,
		output: output,
		done:   make(chan struct{}),
	}
	go p.wait()

	logger.Debug().
		Str("source_url", spec.SourceURL).
		Str("role", string(spec.Role)).
		Int("pid", cmd.Process.Pid).
		Str("ffmpeg_command", strings.Join(append([]string{spec.Binary}, spec.Args...), " ")).
		Msg("Started ffmpeg process")

	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *LineRing
	done   chan struct{}
	err    error
}

func (p *execProcess) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) ExitErr() error {
	if !p.Exited() {
		return nil
	}
	return p.err
}

func (p *execProcess) Output() []string {
	return p.output.Lines()
}

// Kill sends SIGTERM, escalates to SIGKILL halfway through wait and gives up
// once wait has elapsed.
func (p *execProcess) Kill(wait time.Duration) error {
	if p.Exited() {
		return nil
	}

	pid := p.Pid()
	grace := wait / 2

	if err := terminateGroup(pid); err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("SIGTERM to process group failed")
	}

	timer := time.NewTimer(grace)
	select {
	case <-p.done:
		timer.Stop()
		return nil
	case <-timer.C:
	}

	if err := killGroup(pid); err != nil {
		_ = p.cmd.Process.Kill()
	}

	timer = time.NewTimer(wait - grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("pid %d: %w", pid, ErrKillTimeout)
	}
}

// residentMemory reads VmRSS of pid in bytes, zero when unavailable
func residentMemory(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				return kb * 1024
			}
		}
		break
	}
	return 0
}
