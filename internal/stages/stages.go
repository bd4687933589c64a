package stages

import (
	"strings"
	"time"
)

// ID is a stage identifier shared across pipelines (GALV means the same column in both).
type ID string

const (
	FitUp     ID = "FIT_UP"
	NDE       ID = "NDE"
	VIDI      ID = "VIDI"
	Final     ID = "FINAL"
	ArupFinal ID = "ARUP_FINAL"
	Galv      ID = "GALV"
	ArupGalv  ID = "ARUP_GALV"
	Shot      ID = "SHOT"
	Paint     ID = "PAINT"
	ArupPaint ID = "ARUP_PAINT"
	Packing   ID = "PACKING"
)

// Field is the assembly column holding the stage date.
func (id ID) Field() string {
	return strings.ToLower(string(id)) + "_date"
}

type Pipeline string

const (
	Pipeline7 Pipeline = "PIPELINE_7"
	Pipeline8 Pipeline = "PIPELINE_8"
)

type Stage struct {
	ID          ID
	DisplayName string
	Field       string
}

func newStage(id ID, displayName string) Stage {
	return Stage{ID: id, DisplayName: displayName, Field: id.Field()}
}

// Sequence is an ordered, immutable list of stages.
type Sequence struct {
	pipeline Pipeline
	stages   []Stage
	index    map[ID]int
}

func newSequence(p Pipeline, stages ...Stage) Sequence {
	idx := make(map[ID]int, len(stages))
	for i, st := range stages {
		idx[st.ID] = i
	}
	return Sequence{pipeline: p, stages: stages, index: idx}
}

var (
	sequence7 = newSequence(Pipeline7,
		newStage(FitUp, "Fit-up"),
		newStage(NDE, "NDE"),
		newStage(VIDI, "VIDI"),
		newStage(Galv, "GALV"),
		newStage(Shot, "SHOT"),
		newStage(Paint, "PAINT"),
		newStage(Packing, "PACKING"),
	)
	sequence8 = newSequence(Pipeline8,
		newStage(FitUp, "FIT-UP"),
		newStage(Final, "FINAL"),
		newStage(ArupFinal, "ARUP FINAL"),
		newStage(Galv, "GALV"),
		newStage(ArupGalv, "ARUP GALV"),
		newStage(Shot, "SHOT"),
		newStage(Paint, "PAINT"),
		newStage(ArupPaint, "ARUP PAINT"),
	)
)

func (s Sequence) Pipeline() Pipeline { return s.pipeline }

func (s Sequence) Len() int { return len(s.stages) }

// Stages returns a copy, callers can't reorder the pipeline.
func (s Sequence) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

func (s Sequence) Stage(id ID) (Stage, bool) {
	i, ok := s.index[id]
	if !ok {
		return Stage{}, false
	}
	return s.stages[i], true
}

func (s Sequence) Contains(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Index returns the position of the stage or -1.
func (s Sequence) Index(id ID) int {
	i, ok := s.index[id]
	if !ok {
		return -1
	}
	return i
}

func SequenceFor(p Pipeline) (Sequence, bool) {
	switch p {
	case Pipeline7:
		return sequence7, true
	case Pipeline8:
		return sequence8, true
	default:
		return Sequence{}, false
	}
}

func Sequences() []Sequence {
	return []Sequence{sequence7, sequence8}
}

func ParsePipeline(s string) (Pipeline, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PIPELINE_7", "7":
		return Pipeline7, true
	case "PIPELINE_8", "8":
		return Pipeline8, true
	default:
		return "", false
	}
}

// All returns every known stage once, in first-seen pipeline order.
func All() []Stage {
	seen := make(map[ID]struct{})
	var out []Stage
	for _, seq := range Sequences() {
		for _, st := range seq.stages {
			if _, ok := seen[st.ID]; ok {
				continue
			}
			seen[st.ID] = struct{}{}
			out = append(out, st)
		}
	}
	return out
}

// Lookup finds a stage in any pipeline.
func Lookup(id ID) (Stage, bool) {
	for _, seq := range Sequences() {
		if st, ok := seq.Stage(id); ok {
			return st, true
		}
	}
	return Stage{}, false
}

// ParseID accepts "Fit-up", "fit_up", "ARUP FINAL" and similar spellings.
func ParseID(s string) (ID, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	id := ID(norm)
	if _, ok := Lookup(id); !ok {
		return "", false
	}
	return id, true
}

// SentinelDate marks a stage as not required for the assembly.
var SentinelDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

func IsSentinel(t time.Time) bool {
	y, m, d := t.Date()
	return y == 1900 && m == time.January && d == 1
}

// Columns lists every stage date column; SQL that names a stage column must pick from it.
func Columns() []string {
	all := All()
	out := make([]string, 0, len(all))
	for _, st := range all {
		out = append(out, st.Field)
	}
	return out
}
