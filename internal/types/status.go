package types

// Status is a type for the lifecycle status of a resource in the database.
// Any changes to this type should be reflected in the database schema by running migrations
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

type RunMode string

const (
	// ModeLocal runs the API server and the poller in a single process
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
	// ModePoller runs just the reconciliation poller
	ModePoller RunMode = "poller"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)
