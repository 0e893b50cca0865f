package probe

import (
	"time"
)

// SRV is a single service-location record.
type SRV struct {
	Target   string `json:"target"`
	Port     uint16 `json:"port"`
	Priority uint16 `json:"priority"`
	Weight   uint16 `json:"weight"`
}

// ServiceState is the observed state of one service on a target.
type ServiceState struct {
	Name      string `json:"Name"`
	Exists    bool   `json:"Exists"`
	Running   bool   `json:"Running"`
	StartType string `json:"StartType"`
}

// Resource measurement names used as keys of ResourceUsage.Unavailable.
const (
	MeasureCPU      = "cpu"
	MeasureMemory   = "memory"
	MeasureDiskFree = "diskFree"
)

// ResourceUsage is a point-in-time utilization sample.
type ResourceUsage struct {
	CPUPercent      float64 `json:"CPUPercent"`
	MemoryPercent   float64 `json:"MemoryPercent"`
	DiskFreePercent float64 `json:"DiskFreePercent"`
	DataVolume      string  `json:"DataVolume"`
	// Unavailable maps each measurement that could not be taken to the
	// reason. The matching percentage field is meaningless.
	Unavailable map[string]string `json:"Unavailable,omitempty"`
}

// Available reports whether the named measurement was taken.
func (u ResourceUsage) Available(measure string) bool {
	_, missing := u.Unavailable[measure]
	return !missing
}

// MarkUnavailable records why the named measurement could not be taken.
func (u *ResourceUsage) MarkUnavailable(measure string, err error) {
	if u.Unavailable == nil {
		u.Unavailable = map[string]string{}
	}
	u.Unavailable[measure] = err.Error()
}

// TimeStatus describes the clock synchronization state of a target.
type TimeStatus struct {
	// Offset is the target clock minus the reference clock.
	Offset         time.Duration `json:"-"`
	Source         string        `json:"Source"`
	ServiceRunning bool          `json:"ServiceRunning"`
	Stratum        int           `json:"Stratum"`
}

// SysvolStatus describes the file-replication state of a target.
type SysvolStatus struct {
	ServiceRunning bool      `json:"ServiceRunning"`
	Shared         bool      `json:"Shared"`
	Backlog        int       `json:"Backlog"`
	LastSync       time.Time `json:"LastSync"`
	State          string    `json:"State"`
}

// DatabaseStatus describes the directory database on a target.
type DatabaseStatus struct {
	Present              bool    `json:"Present"`
	Path                 string  `json:"Path"`
	SizeBytes            int64   `json:"SizeBytes"`
	WhitespaceBytes      int64   `json:"WhitespaceBytes"`
	FragmentationPercent float64 `json:"FragmentationPercent"`
	// DataFreePercent and LogFreePercent are nil when the volume could not
	// be measured.
	DataFreePercent *float64 `json:"DataFreePercent"`
	LogFreePercent  *float64 `json:"LogFreePercent"`
}

// AuthActivity summarizes authentication activity over a window.
type AuthActivity struct {
	Lockouts     int `json:"Lockouts"`
	FailedLogons int `json:"FailedLogons"`
	NTLM         int `json:"NTLM"`
	Kerberos     int `json:"Kerberos"`
}

// EventLevel is the severity of an event-log entry.
type EventLevel int

// Event levels as recorded by the event log.
const (
	LevelCritical    EventLevel = 1
	LevelError       EventLevel = 2
	LevelWarning     EventLevel = 3
	LevelInformation EventLevel = 4
)

// String returns the level name.
func (l EventLevel) String() string {
	switch l {
	case LevelCritical:
		return "Critical"
	case LevelError:
		return "Error"
	case LevelWarning:
		return "Warning"
	case LevelInformation:
		return "Information"
	default:
		return "Verbose"
	}
}

// Event is a single event-log entry.
type Event struct {
	Log     string     `json:"Log"`
	ID      int        `json:"Id"`
	Level   EventLevel `json:"Level"`
	Source  string     `json:"Source"`
	Time    time.Time  `json:"Time"`
	Message string     `json:"Message"`
}

// ReplicationLink is one inbound replication partnership.
type ReplicationLink struct {
	Partner             string    `json:"Partner"`
	NamingContext       string    `json:"NamingContext"`
	LastSuccess         time.Time `json:"LastSuccess"`
	LastAttempt         time.Time `json:"LastAttempt"`
	ConsecutiveFailures int       `json:"ConsecutiveFailures"`
	LastResult          int       `json:"LastResult"`
	LastError           string    `json:"LastError"`
}

// Trust is a trust relationship and its verification outcome.
type Trust struct {
	Name      string `json:"Name"`
	Direction string `json:"Direction"`
	Verified  bool   `json:"Verified"`
	Error     string `json:"Error"`
}

// Authoritative roles. Exactly one server holds each at a time.
const (
	RoleSchemaMaster         = "SchemaMaster"
	RoleDomainNamingMaster   = "DomainNamingMaster"
	RolePDCEmulator          = "PDCEmulator"
	RoleRIDMaster            = "RIDMaster"
	RoleInfrastructureMaster = "InfrastructureMaster"
)

// Roles lists the authoritative roles in reporting order.
var Roles = []string{
	RoleSchemaMaster,
	RoleDomainNamingMaster,
	RolePDCEmulator,
	RoleRIDMaster,
	RoleInfrastructureMaster,
}
