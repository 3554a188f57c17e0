// Package process supervises detached background processes.
//
// The supervisor keeps one record per spawned child, keyed by pid. A
// record exists exactly as long as Stop has not been called for that
// pid: Stop removes the record before delivering SIGKILL, so the exit
// notification that follows a supervisor stop finds no record and is
// published with Expected set. An exit that still finds its record is
// unexpected, and the mode loop routes it into the failure funnel.
//
// Children run in their own process group (Setpgid), optionally under
// an unprivileged account, with stdout and stderr appended to a
// per-process log file.
package process
