// Package icmp implements probe.Pinger.
//
// Two modes are supported. The native mode sends echo requests itself using
// pro-bing; the system mode shells out to the platform ping command and
// parses the round-trip time from its output, which works where raw or
// unprivileged ICMP sockets are not permitted.
package icmp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	probing "github.com/prometheus-community/pro-bing"
)

// Mode selects how echo requests are sent.
type Mode string

const (
	// ModeNative sends echo requests with pro-bing.
	ModeNative Mode = "native"

	// ModeSystem runs the system ping command.
	ModeSystem Mode = "system"
)

const (
	// DefaultTimeout is the default time allowed for all replies.
	DefaultTimeout = 3 * time.Second

	// DefaultCount is the default number of echo requests.
	DefaultCount = 1
)

// ErrNoReply is returned when no echo reply was received.
var ErrNoReply = errors.New("no echo reply")

// runFunc runs a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Pinger implements probe.Pinger.
type Pinger struct {
	mode       Mode
	timeout    time.Duration
	count      int
	privileged bool
	goos       string
	run        runFunc
}

// Option is a functional option for configuring a Pinger.
type Option func(*Pinger) error

// WithMode selects native or system mode.
func WithMode(m Mode) Option {
	return func(p *Pinger) error {
		switch m {
		case ModeNative, ModeSystem:
			p.mode = m
			return nil
		}
		return fmt.Errorf("unknown mode %q", m)
	}
}

// WithTimeout sets the time allowed for all replies.
func WithTimeout(d time.Duration) Option {
	return func(p *Pinger) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithCount sets the number of echo requests to send.
func WithCount(n int) Option {
	return func(p *Pinger) error {
		if n < 1 {
			return fmt.Errorf("count must be at least 1, got %d", n)
		}
		p.count = n
		return nil
	}
}

// WithPrivileged makes native mode use raw sockets instead of
// unprivileged datagram sockets.
func WithPrivileged(privileged bool) Option {
	return func(p *Pinger) error {
		p.privileged = privileged
		return nil
	}
}

// New creates a Pinger. The default mode is native.
func New(opts ...Option) (*Pinger, error) {
	p := &Pinger{
		mode:    ModeNative,
		timeout: DefaultTimeout,
		count:   DefaultCount,
		goos:    runtime.GOOS,
		run:     runCommand,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("icmp: %w", err)
		}
	}
	return p, nil
}

// Ping sends echo requests to host and returns the average round-trip time.
func (p *Pinger) Ping(ctx context.Context, host string) (time.Duration, error) {
	if host == "" {
		return 0, errors.New("icmp: host must not be empty")
	}
	if p.mode == ModeSystem {
		return p.system(ctx, host)
	}
	return p.native(ctx, host)
}

func (p *Pinger) native(ctx context.Context, host string) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, errors.Wrapf(err, "ping %s", host)
	}
	pinger.SetPrivileged(p.privileged)
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, errors.Wrapf(err, "ping %s", host)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, errors.Wrapf(ErrNoReply, "ping %s", host)
	}
	return stats.AvgRtt, nil
}

func (p *Pinger) system(ctx context.Context, host string) (time.Duration, error) {
	out, err := p.run(ctx, "ping", p.args(host)...)
	if err != nil {
		return 0, errors.Wrapf(err, "ping %s", host)
	}
	rtt, err := parseOutput(string(out))
	if err != nil {
		return 0, errors.Wrapf(err, "ping %s", host)
	}
	return rtt, nil
}

// args builds the ping arguments for the platform. Windows takes the
// timeout per reply in milliseconds, the others in whole seconds.
func (p *Pinger) args(host string) []string {
	count := strconv.Itoa(p.count)
	if p.goos == "windows" {
		return []string{"-n", count, "-w", strconv.FormatInt(p.timeout.Milliseconds(), 10), host}
	}
	secs := int(p.timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", count, "-W", strconv.Itoa(secs), host}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), err
	}
	return out.Bytes(), nil
}

// parseOutput extracts the first round-trip time from ping output. Both the
// Unix form "time=0.042 ms" and the Windows forms "time=12ms" and "time<1ms"
// are understood.
func parseOutput(output string) (time.Duration, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, "time=")
		if idx == -1 {
			idx = strings.Index(line, "time<")
		}
		if idx == -1 {
			continue
		}

		rest := line[idx+len("time="):]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.'
		})
		if end == -1 {
			end = len(rest)
		}
		rttStr := rest[:end]
		unit := strings.TrimSpace(rest[end:])
		if i := strings.IndexAny(unit, " \t"); i != -1 {
			unit = unit[:i]
		}

		rtt, err := strconv.ParseFloat(rttStr, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse RTT %q: %w", line[idx+len("time="):], err)
		}

		switch unit {
		case "ms":
			return time.Duration(rtt * float64(time.Millisecond)), nil
		case "us", "µs":
			return time.Duration(rtt * float64(time.Microsecond)), nil
		case "s":
			return time.Duration(rtt * float64(time.Second)), nil
		}
		return 0, fmt.Errorf("could not determine time unit from %q", unit)
	}
	return 0, fmt.Errorf("RTT not found in ping output")
}
