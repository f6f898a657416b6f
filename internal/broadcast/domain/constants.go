package domain

// JobStatus is the lifecycle state of a broadcast job
type JobStatus string

// Job status constants
const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// IsValid reports whether s is a known job status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job can no longer change state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// MembersFilter selects recipients by payment status over the job's months
type MembersFilter string

const (
	MembersFilterAll     MembersFilter = "All"
	MembersFilterPaid    MembersFilter = "Paid"
	MembersFilterUnpaid  MembersFilter = "Unpaid"
	MembersFilterPartial MembersFilter = "Partial"
)

func (f MembersFilter) String() string { return string(f) }

func (f MembersFilter) IsValid() bool {
	switch f {
	case MembersFilterAll, MembersFilterPaid, MembersFilterUnpaid, MembersFilterPartial:
		return true
	}
	return false
}

const (
	// DefaultBatchSize bounds the number of concurrent sends within one job
	DefaultBatchSize = 20

	// DefaultIntakeLimit is how many queued jobs one intake run picks up
	DefaultIntakeLimit = 5

	// MonthLayout is the serialized form of a month in monthsFilter
	MonthLayout = "2006-01-02"
)
