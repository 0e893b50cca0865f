package remote

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

var (
	_ probe.Remote    = (*Client)(nil)
	_ probe.Directory = (*Client)(nil)
)

type resourcesWire struct {
	CPUPercent      *float64
	MemoryPercent   *float64
	DiskFreePercent *float64
	DataVolume      string
}

// Resources samples CPU, memory and data-store volume utilization on host.
// A counter the host did not report is marked unavailable.
func (c *Client) Resources(ctx context.Context, host string) (probe.ResourceUsage, error) {
	var w resourcesWire
	if err := c.query(ctx, "resources", host, nil, &w); err != nil {
		return probe.ResourceUsage{}, err
	}
	out := probe.ResourceUsage{DataVolume: w.DataVolume}
	for _, m := range []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{probe.MeasureCPU, w.CPUPercent, &out.CPUPercent},
		{probe.MeasureMemory, w.MemoryPercent, &out.MemoryPercent},
		{probe.MeasureDiskFree, w.DiskFreePercent, &out.DiskFreePercent},
	} {
		if m.src == nil {
			out.MarkUnavailable(m.name, errors.Wrapf(probe.ErrNoData, "%s on %s", m.name, host))
			continue
		}
		*m.dst = *m.src
	}
	return out, nil
}

// Services reports the state of each named service on host.
func (c *Client) Services(ctx context.Context, host string, names []string) ([]probe.ServiceState, error) {
	var out []probe.ServiceState
	if err := c.query(ctx, "services", host, names, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type timeStatusWire struct {
	OffsetSeconds  float64
	Source         string
	ServiceRunning bool
	Stratum        int
}

// TimeStatus reports the clock offset and time source of host.
func (c *Client) TimeStatus(ctx context.Context, host string) (probe.TimeStatus, error) {
	var w timeStatusWire
	if err := c.query(ctx, "timestatus", host, nil, &w); err != nil {
		return probe.TimeStatus{}, err
	}
	return probe.TimeStatus{
		Offset:         time.Duration(math.Round(w.OffsetSeconds * float64(time.Second))),
		Source:         w.Source,
		ServiceRunning: w.ServiceRunning,
		Stratum:        w.Stratum,
	}, nil
}

type sysvolWire struct {
	ServiceRunning bool
	Shared         bool
	Backlog        int
	LastSync       string
	State          string
}

// SysvolStatus reports the file-replication state of host.
func (c *Client) SysvolStatus(ctx context.Context, host string) (probe.SysvolStatus, error) {
	var w sysvolWire
	if err := c.query(ctx, "sysvol", host, nil, &w); err != nil {
		return probe.SysvolStatus{}, err
	}
	last, err := parseTime(w.LastSync)
	if err != nil {
		return probe.SysvolStatus{}, err
	}
	return probe.SysvolStatus{
		ServiceRunning: w.ServiceRunning,
		Shared:         w.Shared,
		Backlog:        w.Backlog,
		LastSync:       last,
		State:          w.State,
	}, nil
}

// DatabaseStatus reports the directory database file and its volumes on host.
func (c *Client) DatabaseStatus(ctx context.Context, host string) (probe.DatabaseStatus, error) {
	var out probe.DatabaseStatus
	err := c.query(ctx, "database", host, nil, &out)
	return out, err
}

// AuthActivity counts lockouts, failed logons and authentications by
// protocol on host over window.
func (c *Client) AuthActivity(ctx context.Context, host string, window time.Duration) (probe.AuthActivity, error) {
	var out probe.AuthActivity
	arg := struct{ Hours float64 }{Hours: window.Hours()}
	err := c.query(ctx, "authactivity", host, arg, &out)
	return out, err
}

type eventWire struct {
	Log     string
	ID      int `json:"Id"`
	Level   int
	Source  string
	Time    string
	Message string
}

// Events returns every critical and error event recorded in logs on host
// since the given time.
func (c *Client) Events(ctx context.Context, host string, logs []string, since time.Time) ([]probe.Event, error) {
	arg := struct {
		Logs  []string
		Since string
	}{Logs: logs, Since: since.UTC().Format(time.RFC3339)}

	var ws []eventWire
	if err := c.query(ctx, "events", host, arg, &ws); err != nil {
		return nil, err
	}
	out := make([]probe.Event, 0, len(ws))
	for _, w := range ws {
		t, err := parseTime(w.Time)
		if err != nil {
			return nil, err
		}
		out = append(out, probe.Event{
			Log:     w.Log,
			ID:      w.ID,
			Level:   probe.EventLevel(w.Level),
			Source:  w.Source,
			Time:    t,
			Message: w.Message,
		})
	}
	return out, nil
}

type linkWire struct {
	Partner             string
	NamingContext       string
	LastSuccess         string
	LastAttempt         string
	ConsecutiveFailures int
	LastResult          int
	LastError           string
}

// ReplicationLinks returns the inbound replication links of host.
func (c *Client) ReplicationLinks(ctx context.Context, host string) ([]probe.ReplicationLink, error) {
	var ws []linkWire
	if err := c.query(ctx, "replication", host, nil, &ws); err != nil {
		return nil, err
	}
	out := make([]probe.ReplicationLink, 0, len(ws))
	for _, w := range ws {
		success, err := parseTime(w.LastSuccess)
		if err != nil {
			return nil, err
		}
		attempt, err := parseTime(w.LastAttempt)
		if err != nil {
			return nil, err
		}
		out = append(out, probe.ReplicationLink{
			Partner:             w.Partner,
			NamingContext:       w.NamingContext,
			LastSuccess:         success,
			LastAttempt:         attempt,
			ConsecutiveFailures: w.ConsecutiveFailures,
			LastResult:          w.LastResult,
			LastError:           w.LastError,
		})
	}
	return out, nil
}

// RoleHolders maps each authoritative role to its holder.
func (c *Client) RoleHolders(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := c.query(ctx, "roles", c.domain, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trusts returns the trusts visible from host with their verification result.
func (c *Client) Trusts(ctx context.Context, host string) ([]probe.Trust, error) {
	var out []probe.Trust
	if err := c.query(ctx, "trusts", host, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
