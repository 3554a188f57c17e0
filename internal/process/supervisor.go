package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/nodewarden/internal/command"
	"github.com/smazurov/nodewarden/internal/events"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/metrics"
)

// Spec describes one background process to launch.
type Spec struct {
	// Name labels the process in logs, metrics, and exit events, and
	// names its log file.
	Name    string
	Command string
	// User optionally runs the process under a named account,
	// overriding the supervisor default.
	User string
	// Dir optionally sets the working directory.
	Dir string
	// LogFile optionally overrides where output is captured.
	LogFile string
}

// Info describes one tracked process.
type Info struct {
	ID        string
	PID       int
	Command   string
	StartedAt time.Time
	LogFile   string
}

// record tracks one spawned child. Present in the table iff Stop has
// not been called for its pid.
type record struct {
	name      string
	command   string
	pid       int
	cmd       *exec.Cmd
	logFile   *os.File
	logPath   string
	startedAt time.Time
}

// Supervisor spawns detached background processes and publishes an
// exit event for every child. Exit classification happens against the
// record table at exit time, never at stop time, which keeps the stop
// path and the exit path free of ordering assumptions beyond
// "remove before kill".
type Supervisor struct {
	mu      sync.Mutex
	records map[int]*record
	bus     *events.Bus
	logger  logging.Logger
	logDir  string
	user    string
	wg      sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogDir overrides the directory for per-process log files.
func WithLogDir(dir string) Option {
	return func(s *Supervisor) { s.logDir = dir }
}

// WithUser sets the default account children run under. Only usable
// when the supervisor itself runs as root.
func WithUser(name string) Option {
	return func(s *Supervisor) { s.user = name }
}

// New creates a supervisor that publishes exit events on bus.
func New(bus *events.Bus, opts ...Option) *Supervisor {
	s := &Supervisor{
		records: make(map[int]*record),
		bus:     bus,
		logger:  logging.GetLogger("process"),
		logDir:  "/var/log/nodewarden",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns spec.Command as a detached background process and
// returns its pid. The record is registered before the exit watcher
// starts, so a child that dies immediately is still classified
// against its record.
func (s *Supervisor) Start(spec Spec) (int, error) {
	args, err := command.Split(spec.Command)
	if err != nil {
		return 0, fmt.Errorf("parse command for %s: %w", spec.Name, err)
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("empty command for %s", spec.Name)
	}

	cmd := exec.Command(args[0], args[1:]...)
	attr := &syscall.SysProcAttr{Setpgid: true}

	account := spec.User
	if account == "" {
		account = s.user
	}
	if account != "" {
		cred, err := lookupCredential(account)
		if err != nil {
			return 0, fmt.Errorf("resolve account %s: %w", account, err)
		}
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr
	cmd.Dir = spec.Dir

	logPath, logFile, err := s.openLog(spec)
	if err != nil {
		return 0, err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return 0, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	rec := &record{
		name:      spec.Name,
		command:   spec.Command,
		pid:       cmd.Process.Pid,
		cmd:       cmd,
		logFile:   logFile,
		logPath:   logPath,
		startedAt: time.Now(),
	}

	s.mu.Lock()
	s.records[rec.pid] = rec
	s.mu.Unlock()

	s.logger.Info("Background process started",
		"id", spec.Name, "pid", rec.pid, "command", spec.Command, "log", logPath)
	metrics.CountProcessStart(spec.Name)

	s.wg.Add(1)
	go s.watch(rec)

	return rec.pid, nil
}

// Stop removes the record for pid and then kills its process group.
// Removal comes first so the exit notification that follows the kill
// finds no record and is treated as expected. Stopping an unknown or
// already-stopped pid is a no-op.
func (s *Supervisor) Stop(pid int) {
	s.mu.Lock()
	rec, ok := s.records[pid]
	if ok {
		delete(s.records, pid)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	s.logger.Info("Stopping background process", "id", rec.name, "pid", pid)
	// Negative pid targets the process group created by Setpgid, so
	// shell children die with their parent.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("Failed to kill process group", "id", rec.name, "pid", pid, "error", err)
	}
}

// StopAll stops every tracked process and waits until their exit
// events have been published.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	pids := make([]int, 0, len(s.records))
	for pid := range s.records {
		pids = append(pids, pid)
	}
	s.mu.Unlock()

	if len(pids) == 0 {
		return
	}

	s.logger.Info("Stopping all background processes", "count", len(pids))
	for _, pid := range pids {
		s.Stop(pid)
	}
	s.wg.Wait()
}

// Running returns info for every tracked process, sorted by id.
func (s *Supervisor) Running() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.records))
	for _, rec := range s.records {
		infos = append(infos, Info{
			ID:        rec.name,
			PID:       rec.pid,
			Command:   rec.command,
			StartedAt: rec.startedAt,
			LogFile:   rec.logPath,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// watch blocks until the child exits, classifies the exit against the
// record table, and publishes the notification. The table is only
// consulted here, never modified: records are removed by Stop alone,
// which keeps "record absent" an unambiguous marker of a supervisor
// stop.
func (s *Supervisor) watch(rec *record) {
	defer s.wg.Done()

	err := rec.cmd.Wait()
	code := exitCode(err)
	rec.logFile.Close()

	s.mu.Lock()
	_, tracked := s.records[rec.pid]
	s.mu.Unlock()

	if tracked {
		s.logger.Error("Background process exited unexpectedly",
			"id", rec.name, "pid", rec.pid, "exit_code", code, "command", rec.command)
	} else {
		s.logger.Info("Background process stopped",
			"id", rec.name, "pid", rec.pid, "exit_code", code)
	}

	s.bus.Publish(events.ProcessExitedEvent{
		ID:        rec.name,
		PID:       rec.pid,
		Command:   rec.command,
		ExitCode:  code,
		Expected:  !tracked,
		Timestamp: time.Now(),
	})
}

func (s *Supervisor) openLog(spec Spec) (string, *os.File, error) {
	path := spec.LogFile
	if path == "" {
		path = filepath.Join(s.logDir, spec.Name+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("open process log: %w", err)
	}
	return path, f, nil
}

// lookupCredential resolves an account name for the child to run
// under.
func lookupCredential(name string) (*syscall.Credential, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

// exitCode extracts the exit code from Wait's error, reporting killed
// processes with the 128+signal convention.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
