package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusUsed      Status = "USED"
	StatusRefunding Status = "REFUNDING"
	StatusRefunded  Status = "REFUNDED"
	StatusCancelled Status = "CANCELLED"
)

// validNext is the single authoritative transition table. A transition to the
// current status is a no-op accept and is handled by the caller, not listed
// here. REFUNDING -> PAID covers a failed refund reverting.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusUsed: true, StatusRefunding: true, StatusCancelled: true},
	StatusUsed:      {StatusRefunding: true},
	StatusRefunding: {StatusRefunded: true, StatusPaid: true},
	StatusRefunded:  {},
	StatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(validNext[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus validates a client-submitted status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusPaid, StatusUsed, StatusRefunding, StatusRefunded, StatusCancelled:
		return Status(raw), true
	default:
		return "", false
	}
}
