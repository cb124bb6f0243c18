package sync

import "github.com/ThalesMMS/replicant/internal/github"

// Action enumerates the operation kinds the planner can emit. The executor
// dispatches over all of them exhaustively; adding a kind is a compile-time
// visible change.
type Action int

const (
	ActionClone Action = iota
	ActionPull
	ActionForceReset
	ActionReclone
	ActionSkip
	ActionDelete
)

// String returns the action name used in logs and summaries
func (a Action) String() string {
	switch a {
	case ActionClone:
		return "clone"
	case ActionPull:
		return "pull"
	case ActionForceReset:
		return "force-reset"
	case ActionReclone:
		return "reclone"
	case ActionSkip:
		return "skip"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Task is one planned operation against one repository path. Paths are unique
// within a plan, so no two tasks ever touch the same working copy.
type Task struct {
	Action Action
	Path   string
	Repo   *github.Repository // nil for delete tasks
	Reason string             // populated for skips
}

// Status classifies how an executed task ended
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of executing one task. Action may differ from the
// planned one: a pull that hit a renamed default branch is reported as the
// reclone that replaced it.
type Outcome struct {
	Action Action
	Path   string
	Status Status
	Reason string // skip reason
	Err    error
}

// Summary counts outcomes per category for the end-of-run report
type Summary struct {
	Cloned   int
	Pulled   int
	Reset    int
	Recloned int
	Deleted  int
	Skipped  int
	Failed   int
}

// Total returns the number of outcomes counted
func (s Summary) Total() int {
	return s.Cloned + s.Pulled + s.Reset + s.Recloned + s.Deleted + s.Skipped + s.Failed
}

func (s *Summary) add(out Outcome) {
	switch out.Status {
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	case StatusSuccess:
		switch out.Action {
		case ActionClone:
			s.Cloned++
		case ActionPull:
			s.Pulled++
		case ActionForceReset:
			s.Reset++
		case ActionReclone:
			s.Recloned++
		case ActionDelete:
			s.Deleted++
		case ActionSkip:
			// skips never succeed; counted above
		}
	}
}

// Sink consumes outcome events as they are produced, plus the final summary.
// Report may be called from multiple goroutines' results but is always
// invoked serially.
type Sink interface {
	Report(Outcome)
	Close(Summary)
}
