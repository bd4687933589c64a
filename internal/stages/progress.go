package stages

import "time"

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
)

var statusLabels = map[string]map[Status]string{
	"en": {
		StatusWaiting:    "Waiting",
		StatusInProgress: "In progress",
		StatusComplete:   "Complete",
	},
	"ko": {
		StatusWaiting:    "대기",
		StatusInProgress: "진행중",
		StatusComplete:   "완료",
	},
}

// Label translates the status for presentation; unknown languages fall back to English.
func (s Status) Label(lang string) string {
	t, ok := statusLabels[lang]
	if !ok {
		t = statusLabels["en"]
	}
	if l, ok := t[s]; ok {
		return l
	}
	return string(s)
}

type State int

const (
	StatePending State = iota
	StateCompleted
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "COMPLETED"
	case StateSkipped:
		return "SKIPPED"
	default:
		return "PENDING"
	}
}

// Values holds the stage dates of one assembly; a missing key is the same as nil.
type Values map[ID]*time.Time

func Classify(v *time.Time) State {
	switch {
	case v == nil || v.IsZero():
		return StatePending
	case IsSentinel(*v):
		return StateSkipped
	default:
		return StateCompleted
	}
}

type StageState struct {
	Stage Stage
	State State
	Date  *time.Time
}

type Progress struct {
	Status            Status
	LastCompleted     ID
	LastCompletedDate *time.Time
	Next              ID
	CompletedCount    int
	SkippedCount      int
	RequiredCount     int
	Stages            []StageState
}

// Compute derives where an assembly stands in seq. LastCompleted is the
// highest-index completed stage, not the one with the latest date.
func Compute(values Values, seq Sequence) Progress {
	var p Progress
	p.Stages = make([]StageState, 0, seq.Len())

	for _, st := range seq.stages {
		v := values[st.ID]
		state := Classify(v)
		ss := StageState{Stage: st, State: state}

		switch state {
		case StateCompleted:
			d := *v
			ss.Date = &d
			p.CompletedCount++
			p.LastCompleted = st.ID
			p.LastCompletedDate = ss.Date
		case StateSkipped:
			p.SkippedCount++
		case StatePending:
			if p.Next == "" {
				p.Next = st.ID
			}
		}
		p.Stages = append(p.Stages, ss)
	}

	p.RequiredCount = seq.Len() - p.SkippedCount
	switch {
	case p.CompletedCount >= p.RequiredCount:
		p.Status = StatusComplete
		p.Next = ""
	case p.CompletedCount > 0:
		p.Status = StatusInProgress
	default:
		p.Status = StatusWaiting
	}
	return p
}
