// Package system wraps the operating system calls the station needs:
// rebooting, service manager readiness and local network addresses.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ErrEmptyCommand is returned by Reboot when no command is configured.
var ErrEmptyCommand = errors.New("reboot command is empty")

// Rebooter issues the OS reboot. Run is replaceable for tests.
type Rebooter struct {
	Command []string
	Run     func(ctx context.Context, name string, args ...string) error
}

func NewRebooter(command []string) *Rebooter {
	return &Rebooter{Command: command, Run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return nil
}

// Reboot runs the configured command. On success the machine is going down
// and the caller should expect to be terminated.
func (r *Rebooter) Reboot(ctx context.Context) error {
	if len(r.Command) == 0 || r.Command[0] == "" {
		return ErrEmptyCommand
	}
	return r.Run(ctx, r.Command[0], r.Command[1:]...)
}

// Notify sends a state string such as "READY=1" to the service manager.
// It does nothing when NOTIFY_SOCKET is unset.
func Notify(state string) error {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return nil
	}
	// abstract namespace sockets are announced with a leading '@'
	if strings.HasPrefix(socketPath, "@") {
		socketPath = "\x00" + socketPath[1:]
	}
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return fmt.Errorf("dial notify socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("notify %q: %w", state, err)
	}
	return nil
}

// LocalAddresses lists IPv4 addresses per interface, skipping loopback.
func LocalAddresses() (map[string][]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make(map[string][]string)
	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ips := ipv4Addresses(addrs)
		if len(ips) > 0 {
			out[iface.Name] = ips
		}
	}
	return out, nil
}

func ipv4Addresses(addrs []net.Addr) []string {
	var ips []string
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		ips = append(ips, ip4.String())
	}
	sort.Strings(ips)
	return ips
}
