package parser

// RecordType is the one-byte discriminant of a binary record. Text tags are
// mapped onto the same values for counting.
type RecordType byte

const (
	RunType     RecordType = 0
	RequestType RecordType = 1
	UserType    RecordType = 2
	GroupType   RecordType = 3
	ErrorType   RecordType = 4
)

func (t RecordType) String() string {
	switch t {
	case RunType:
		return "run"
	case RequestType:
		return "request"
	case UserType:
		return "user"
	case GroupType:
		return "group"
	case ErrorType:
		return "error"
	default:
		return "unknown"
	}
}

// Record is one fully decoded binary record
type Record interface {
	Type() RecordType
}

// RunRecord opens every binary log
type RunRecord struct {
	GatlingVersion string
	Simulation     string
	Start          int64 // epoch milliseconds
	Description    string
	Scenarios      []string
	Assertions     int
}

// UserRecord marks a virtual user start or end. Timestamp is relative to
// the run start.
type UserRecord struct {
	Scenario  int32
	Start     bool
	Timestamp int32
}

// RequestRecord is one request sample. Times are relative to the run start.
type RequestRecord struct {
	Groups  []string
	Name    string
	Start   int32
	End     int32
	Success bool
	Message string
}

// GroupRecord closes a group of requests
type GroupRecord struct {
	Groups    []string
	Start     int32
	End       int32
	Cumulated int32
	Success   bool
}

// ErrorRecord is a simulation level error message
type ErrorRecord struct {
	Message   string
	Timestamp int32
}

func (*RunRecord) Type() RecordType     { return RunType }
func (*UserRecord) Type() RecordType    { return UserType }
func (*RequestRecord) Type() RecordType { return RequestType }
func (*GroupRecord) Type() RecordType   { return GroupType }
func (*ErrorRecord) Type() RecordType   { return ErrorType }

// Counters summarize one parse session
type Counters struct {
	Run         int64 `json:"run"`
	User        int64 `json:"user"`
	Request     int64 `json:"request"`
	Group       int64 `json:"group"`
	Error       int64 `json:"error"`
	Invalid     int64 `json:"invalid"`
	CacheMisses int64 `json:"cache_misses"`
}

// Total is the number of successfully decoded records
func (c Counters) Total() int64 {
	return c.Run + c.User + c.Request + c.Group + c.Error
}

func (c *Counters) add(t RecordType) {
	switch t {
	case RunType:
		c.Run++
	case UserType:
		c.User++
	case RequestType:
		c.Request++
	case GroupType:
		c.Group++
	case ErrorType:
		c.Error++
	}
}
