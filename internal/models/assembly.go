package models

import (
	"time"

	"github.com/BearBump/FabTrack/internal/stages"
)

type AssemblyRecord struct {
	AssemblyCode string
	Pipeline     stages.Pipeline
	Zone         string
	Item         string
	Company      string
	WeightGross  *float64

	// Stages хранит даты по стадиям; nil = не выполнено, 1900-01-01 = не требуется.
	Stages stages.Values

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sequence returns the stage pipeline that applies to the assembly.
func (a *AssemblyRecord) Sequence() (stages.Sequence, bool) {
	return stages.SequenceFor(a.Pipeline)
}

func (a *AssemblyRecord) StageDate(id stages.ID) *time.Time {
	if a.Stages == nil {
		return nil
	}
	return a.Stages[id]
}

// AssemblyInput is one row of a bulk import. Stage dates that are absent
// leave the stored value as is.
type AssemblyInput struct {
	AssemblyCode string
	Pipeline     stages.Pipeline
	Zone         string
	Item         string
	Company      string
	WeightGross  *float64
	Stages       stages.Values
}
