package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// Thread device roles that mean the border router is attached to a mesh.
var attachedRoles = map[string]bool{
	"leader": true,
	"router": true,
	"child":  true,
}

// OTCtlSource reads the child table through the ot-ctl management CLI.
// The command may be wrapped, e.g. ["docker", "exec", "otbr", "ot-ctl"].
type OTCtlSource struct {
	command []string
	timeout time.Duration
	run     CommandRunner
}

// NewOTCtlSource creates a CLI topology source.
func NewOTCtlSource(command []string, timeout time.Duration) (*OTCtlSource, error) {
	if len(command) == 0 {
		return nil, errors.New("ot-ctl command is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OTCtlSource{command: command, timeout: timeout, run: execRunner}, nil
}

// SetRunner replaces the command runner.
func (s *OTCtlSource) SetRunner(run CommandRunner) {
	s.run = run
}

// Addresses returns the child IPv6 addresses, or ErrNotAttached when the
// router is detached or disabled.
func (s *OTCtlSource) Addresses(ctx context.Context) ([]string, error) {
	out, err := s.exec(ctx, "state")
	if err != nil {
		return nil, &TopologyError{Source: "ot-ctl", Err: fmt.Errorf("state: %w", err)}
	}
	role := firstLine(out)
	if !attachedRoles[role] {
		return nil, &TopologyError{Source: "ot-ctl", Err: fmt.Errorf("%w: role %q", ErrNotAttached, role)}
	}

	out, err = s.exec(ctx, "childip6")
	if err != nil {
		return nil, &TopologyError{Source: "ot-ctl", Err: fmt.Errorf("childip6: %w", err)}
	}
	return parseChildIP6(out), nil
}

func (s *OTCtlSource) exec(ctx context.Context, sub string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string(nil), s.command[1:]...), sub)
	return s.run(ctx, s.command[0], args...)
}

func firstLine(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return strings.ToLower(line)
		}
	}
	return ""
}

// parseChildIP6 reads lines of the form "0xa801: fd00::99".
func parseChildIP6(out []byte) []string {
	addrs := make([]string, 0)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "Done" {
			continue
		}
		_, addr, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
