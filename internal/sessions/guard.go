// Package sessions detects interactive operator logins so destructive
// actions can wait until nobody is watching the machine over SSH.
package sessions

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/smazurov/nodewarden/internal/clock"
	"github.com/smazurov/nodewarden/internal/logging"
)

// defaultPollInterval is how often AwaitOperatorAbsence re-checks the
// login table while an operator is still connected.
const defaultPollInterval = 10 * time.Second

// UserStat is one entry from the system login accounting table.
type UserStat struct {
	User     string
	Terminal string
	Host     string
}

// SessionSource enumerates current interactive logins. The production
// implementation reads utmp via gopsutil; tests substitute a fake.
type SessionSource interface {
	Sessions() ([]UserStat, error)
}

// UtmpSource reads login sessions from the system accounting database.
type UtmpSource struct{}

// Sessions returns the current interactive logins.
func (UtmpSource) Sessions() ([]UserStat, error) {
	users, err := host.Users()
	if err != nil {
		return nil, err
	}
	stats := make([]UserStat, 0, len(users))
	for _, u := range users {
		stats = append(stats, UserStat{
			User:     u.User,
			Terminal: u.Terminal,
			Host:     u.Host,
		})
	}
	return stats, nil
}

// Guard answers whether a remote operator is connected. Only
// pseudo-terminal sessions count: the local console is often an
// auto-login shell on these images, and treating it as an operator
// would block every reboot forever.
type Guard struct {
	source         SessionSource
	clock          clock.Clock
	pollInterval   time.Duration
	remotePrefixes []string
	logger         logging.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithSource substitutes the session source. Used in tests.
func WithSource(source SessionSource) Option {
	return func(g *Guard) {
		g.source = source
	}
}

// WithClock substitutes the clock. Used in tests.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		g.clock = c
	}
}

// WithPollInterval overrides the re-check interval for
// AwaitOperatorAbsence.
func WithPollInterval(d time.Duration) Option {
	return func(g *Guard) {
		g.pollInterval = d
	}
}

// WithRemotePrefixes overrides which terminal prefixes count as remote
// sessions. Default is pts/ only.
func WithRemotePrefixes(prefixes []string) Option {
	return func(g *Guard) {
		g.remotePrefixes = prefixes
	}
}

// NewGuard creates a session guard.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		source:         UtmpSource{},
		clock:          clock.Real(),
		pollInterval:   defaultPollInterval,
		remotePrefixes: []string{"pts/"},
		logger:         logging.GetLogger("sessions"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OperatorPresent reports whether at least one remote login session
// exists. A failure to read the session table counts as nobody present:
// when the answer cannot be determined, the reboot path must stay open.
func (g *Guard) OperatorPresent() bool {
	stats, err := g.source.Sessions()
	if err != nil {
		g.logger.Warn("Cannot read login sessions, assuming none", "error", err)
		return false
	}

	for _, s := range stats {
		if g.isRemote(s.Terminal) {
			g.logger.Debug("Remote operator session found",
				"user", s.User, "terminal", s.Terminal, "host", s.Host)
			return true
		}
	}
	return false
}

// AwaitOperatorAbsence blocks until no remote operator session remains,
// re-checking at the poll interval. Returns early with ctx.Err() if the
// context is cancelled.
func (g *Guard) AwaitOperatorAbsence(ctx context.Context) error {
	for g.OperatorPresent() {
		g.logger.Info("Remote operator connected, waiting", "recheck_in", g.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(g.pollInterval):
		}
	}
	return nil
}

// isRemote reports whether a terminal name belongs to a remote session.
func (g *Guard) isRemote(terminal string) bool {
	for _, prefix := range g.remotePrefixes {
		if strings.HasPrefix(terminal, prefix) {
			return true
		}
	}
	return false
}
