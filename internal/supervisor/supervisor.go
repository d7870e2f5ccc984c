package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"postforge/internal/logbus"
	"postforge/internal/runlog"
	"postforge/internal/stage"
)

// ErrBusy is returned when a run is requested while another stage is active.
// The supervisor never queues; callers decide whether to retry.
var ErrBusy = errors.New("a stage is already running")

// Handle tracks the single currently-running stage invocation. At most one
// exists per supervisor at any time.
type Handle struct {
	Stage   string
	Started time.Time
	cmd     *exec.Cmd
}

// Supervisor launches one allow-listed stage as a subprocess at a time,
// streams its output to the bus line by line, and can terminate it on
// demand.
type Supervisor struct {
	mu       sync.Mutex
	active   *Handle
	registry *stage.Registry
	bus      *logbus.Bus
	archive  *runlog.Archive
}

// New wires a supervisor. archive may be nil to disable run-log files.
func New(registry *stage.Registry, bus *logbus.Bus, archive *runlog.Archive) *Supervisor {
	return &Supervisor{registry: registry, bus: bus, archive: archive}
}

// Active reports the running stage name, if any. Safe for concurrent use.
func (s *Supervisor) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.Stage, true
}

// Run executes one stage to completion. The stage must be in the allow-list.
// While a stage is active any further Run call fails with ErrBusy, so at
// most one supervised process exists even under concurrent manual and
// scheduled triggers. On exit code 0 the accumulated stdout is returned; on
// a nonzero exit the error carries the accumulated stderr.
func (s *Supervisor) Run(ctx context.Context, name string, extraArgs []string) (string, error) {
	st, err := s.registry.Lookup(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	args := append(append([]string{}, st.Args...), extraArgs...)

	// Win the handle slot before touching any process resources, so a
	// rejected concurrent run allocates nothing that would need cleanup.
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return "", ErrBusy
	}
	cmd := exec.Command(st.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		stdout.Close()
		return "", fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("spawn stage %s: %w", name, err)
	}
	s.active = &Handle{Stage: name, Started: time.Now(), cmd: cmd}
	s.mu.Unlock()

	s.bus.Publish(logbus.Event{Kind: logbus.KindStart, Stage: name})

	var outText, errText strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go s.stream(&wg, name, logbus.KindStdout, stdout, &outText)
	go s.stream(&wg, name, logbus.KindStderr, stderr, &errText)
	wg.Wait()

	waitErr := cmd.Wait()
	code := exitCode(waitErr)
	s.clear(cmd)
	s.bus.Publish(logbus.Event{Kind: logbus.KindEnd, Stage: name, ExitCode: code})

	if s.archive != nil {
		if _, aerr := s.archive.Save(name, outText.String()+errText.String()); aerr != nil {
			log.Printf("supervisor: cannot archive %s run log: %v", name, aerr)
		}
	}

	if waitErr != nil {
		diag := strings.TrimSpace(errText.String())
		if diag == "" {
			diag = waitErr.Error()
		}
		return "", fmt.Errorf("stage %s exited with code %d: %s", name, code, diag)
	}
	return outText.String(), nil
}

// Terminate sends a graceful interrupt to the active process, if any, and
// clears the handle slot immediately so a new run can be dispatched without
// waiting for the OS-level exit. Terminating with nothing active is a no-op.
// The returned bool reports whether a process was actually signalled.
func (s *Supervisor) Terminate() bool {
	s.mu.Lock()
	h := s.active
	s.active = nil
	s.mu.Unlock()
	if h == nil {
		return false
	}
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		log.Printf("supervisor: interrupt %s: %v", h.Stage, err)
	}
	return true
}

// stream forwards one output pipe to the bus, one event per non-empty line,
// while accumulating the raw text.
func (s *Supervisor) stream(wg *sync.WaitGroup, stageName string, kind logbus.Kind, r io.Reader, acc *strings.Builder) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		acc.WriteString(line)
		acc.WriteByte('\n')
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.bus.Publish(logbus.Event{Kind: kind, Stage: stageName, Message: line})
	}
}

// clear drops the handle only if it still belongs to cmd. Terminate may have
// cleared it already and a new run may own the slot.
func (s *Supervisor) clear(cmd *exec.Cmd) {
	s.mu.Lock()
	if s.active != nil && s.active.cmd == cmd {
		s.active = nil
	}
	s.mu.Unlock()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}
