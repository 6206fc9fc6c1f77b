package friendship

// Status is the sole mutable field of the relationship lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusRemoved  Status = "removed"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusRemoved:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// PairOf returns the canonical ordering of two internal user keys so that
// (a,b) and (b,a) address the same friendship row.
func PairOf(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}
