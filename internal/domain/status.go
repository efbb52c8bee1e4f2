package domain

type Status string

const (
	StatusNew       Status = "new"
	StatusPreparing Status = "preparing"
	StatusPrepared  Status = "prepared"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusPreparing, StatusRejected},
	StatusPreparing: {StatusPrepared, StatusReady, StatusCompleted, StatusRejected},
	StatusPrepared:  {StatusReady, StatusCompleted},
	StatusReady:     {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPreparing, StatusPrepared, StatusReady, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether to is reachable from s. Re-asserting the
// current status is always allowed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) endsPreparation() bool {
	switch s {
	case StatusPrepared, StatusReady, StatusCompleted, StatusRejected:
		return true
	}
	return false
}
