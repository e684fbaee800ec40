package tokens

const (
	EventTransfer = "Transfer"
	EventApproval = "Approval"
)

// Event is a notification raised by a successful state transition.
type Event interface {
	EventName() string
}

// Transfer is raised for every balance movement. A nil From is a mint,
// a nil To is a burn.
type Transfer struct {
	From  *AccountID `json:"from"`
	To    *AccountID `json:"to"`
	Value Amount     `json:"value"`
}

func (Transfer) EventName() string { return EventTransfer }

type Approval struct {
	Owner   AccountID `json:"owner"`
	Spender AccountID `json:"spender"`
	Value   Amount    `json:"value"`
}

func (Approval) EventName() string { return EventApproval }

// EventSink receives notifications in emission order.
type EventSink interface {
	Emit(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Len() int {
	return len(r.events)
}

func (r *Recorder) Reset() {
	r.events = nil
}
