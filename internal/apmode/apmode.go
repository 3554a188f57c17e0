// Package apmode switches the device between normal operation and
// access-point configuration mode.
//
// Entering stops every supervised process, reconfigures networking
// into a local access point, and starts the configuration service so
// a nearby client can reach the device without prior connectivity.
// Leaving stops the access-point processes and reboots.
package apmode

import (
	"os"

	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/process"
)

// CommandRunner executes one foreground command under a deadline.
// Implemented by command.Runner: a hang or launch failure reboots the
// device through the fatal funnel and does not return.
type CommandRunner interface {
	Run(cmdline string) (string, error)
}

// ProcessSupervisor starts and stops the background processes config
// mode owns.
type ProcessSupervisor interface {
	Start(spec process.Spec) (int, error)
	StopAll()
}

// Rebooter issues the planned reboot that is part of config-mode
// teardown.
type Rebooter interface {
	Reboot()
}

// Commands are the privileged network-control command lines run while
// entering and leaving config mode. An empty command skips its step.
type Commands struct {
	DHCPStop  string
	DHCPStart string
	APEnable  string
	APDisable string
}

// DefaultCommands returns the network commands for the reference
// image (dhcpcd client, hostapd+dnsmasq access point).
func DefaultCommands() Commands {
	return Commands{
		DHCPStop:  "systemctl stop dhcpcd",
		DHCPStart: "systemctl start dhcpcd",
		APEnable:  "systemctl start hostapd dnsmasq",
		APDisable: "systemctl stop hostapd dnsmasq",
	}
}

// Controller drives config-mode entry and exit.
type Controller struct {
	runner   CommandRunner
	procs    ProcessSupervisor
	rebooter Rebooter
	logger   logging.Logger

	privileged    bool
	commands      Commands
	servedDir     string
	configService string
	contentServer string
}

// Option configures a Controller.
type Option func(*Controller)

// WithCommands overrides the network-control command lines.
func WithCommands(commands Commands) Option {
	return func(c *Controller) { c.commands = commands }
}

// WithPrivileged forces the privilege decision. Used in tests.
func WithPrivileged(privileged bool) Option {
	return func(c *Controller) { c.privileged = privileged }
}

// WithServedDir sets the directory the content server shares. Empty
// disables the content server.
func WithServedDir(dir string) Option {
	return func(c *Controller) { c.servedDir = dir }
}

// WithConfigService sets the configuration service command.
func WithConfigService(cmdline string) Option {
	return func(c *Controller) { c.configService = cmdline }
}

// WithContentServer sets the content server command. The served
// directory is appended as its final argument.
func WithContentServer(cmdline string) Option {
	return func(c *Controller) { c.contentServer = cmdline }
}

// New creates a config-mode controller.
func New(runner CommandRunner, procs ProcessSupervisor, rebooter Rebooter, opts ...Option) *Controller {
	c := &Controller{
		runner:        runner,
		procs:         procs,
		rebooter:      rebooter,
		logger:        logging.GetLogger("apmode"),
		privileged:    os.Geteuid() == 0,
		commands:      DefaultCommands(),
		configService: "nodewarden-config",
		contentServer: "busybox httpd -f -p 8080 -h",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enter suspends normal operation and brings up the access point with
// the configuration service. Blocks at most the sum of its command
// deadlines.
func (c *Controller) Enter() {
	c.logger.Info("Entering config mode")

	c.procs.StopAll()

	if c.privileged {
		c.runStep("stop dhcp client", c.commands.DHCPStop)
		c.runStep("enable access point", c.commands.APEnable)
	} else {
		c.logger.Warn("Not privileged, skipping network reconfiguration")
	}

	if c.servedDir != "" && c.contentServer != "" {
		cmdline := c.contentServer + " " + c.servedDir
		if _, err := c.procs.Start(process.Spec{Name: "content-server", Command: cmdline}); err != nil {
			c.logger.Error("Failed to start content server", "error", err)
		}
	}

	if c.configService != "" {
		spec := process.Spec{Name: "config-service", Command: c.configService}
		// The configuration service edits system network settings, so
		// it must not drop to the product account.
		if c.privileged {
			spec.User = "root"
		}
		if _, err := c.procs.Start(spec); err != nil {
			c.logger.Error("Failed to start configuration service", "error", err)
		}
	}
}

// Exit tears config mode down. The reboot comes before the network
// restore steps: the wireless driver on the reference hardware
// misbehaves after access-point teardown, and a clean boot is the only
// reliable path back to normal networking. The steps after the
// rebooter call run only in tests, where the rebooter returns.
func (c *Controller) Exit() {
	c.logger.Info("Exiting config mode")

	c.procs.StopAll()

	c.logger.Info("Planned reboot on config-mode exit")
	c.rebooter.Reboot()

	if c.privileged {
		c.runStep("disable access point", c.commands.APDisable)
		c.runStep("start dhcp client", c.commands.DHCPStart)
	}
}

// runStep runs one privileged command line. A nonzero exit comes back
// as an error and is tolerated: stopping an already-stopped service is
// routine. Timeouts and launch failures never return through Run.
func (c *Controller) runStep(step, cmdline string) {
	if cmdline == "" {
		return
	}
	c.logger.Info("Running config-mode step", "step", step, "command", cmdline)
	if _, err := c.runner.Run(cmdline); err != nil {
		c.logger.Warn("Config-mode step failed", "step", step, "error", err)
	}
}
