package store

// Issue statuses. The original data uses upper-case status strings.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Milestone statuses.
const (
	MilestonePlanned   = "planned"
	MilestoneActive    = "active"
	MilestoneCompleted = "completed"
)

// Issue is one tracked issue row. Timestamps are RFC 3339 strings;
// UpdatedAt is the sole input to last-writer-wins conflict resolution,
// so it must change on every mutation.
type Issue struct {
	ID          int64
	Title       string
	Body        string
	Status      string
	CreatedBy   string
	Assignee    string
	CreatedAt   string
	UpdatedAt   string
	MilestoneID *int64
	IsDeleted   bool
}

// Comment is one comment row attached to an issue.
type Comment struct {
	ID        int64
	IssueID   int64
	Body      string
	CreatedBy string
	CreatedAt string
	UpdatedAt string
	IsDeleted bool
}

// Milestone groups issues toward a date.
type Milestone struct {
	ID          int64
	Title       string
	Description string
	StartDate   string
	DueDate     string
	Status      string
	CreatedAt   string
	UpdatedAt   string
	IsDeleted   bool
}

// Reaction is one emoji reaction by one user on an issue or comment.
type Reaction struct {
	TargetID  int64
	ReactedBy string
	Reaction  string
	CreatedAt string
}
