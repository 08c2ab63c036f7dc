package domain

type Status string

const (
	StatusReady      Status = "ready"
	StatusLoading    Status = "loading"
	StatusPrompting  Status = "prompting"
	StatusProcessing Status = "processing"
	StatusDragging   Status = "dragging"
	StatusMasking    Status = "masking"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusLoading, StatusPrompting, StatusProcessing, StatusDragging, StatusMasking:
		return true
	}
	return false
}

// Presence: эфемерное состояние одного соединения. Пишет только владелец.
type Presence struct {
	Cursor        *GridCell `json:"cursor" cbor:"cursor"`
	Frame         *GridCell `json:"frame" cbor:"frame"`
	Status        Status    `json:"status" cbor:"status"`
	CurrentPrompt string    `json:"currentPrompt" cbor:"currentPrompt"`
}

// Clone returns a deep copy so callers never share cursor/frame pointers.
func (p Presence) Clone() Presence {
	out := p
	if p.Cursor != nil {
		c := *p.Cursor
		out.Cursor = &c
	}
	if p.Frame != nil {
		f := *p.Frame
		out.Frame = &f
	}
	return out
}
