package storage

import (
	"context"
	"time"

	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
)

// Claim is one attempt to open an inspection request for (AssemblyCode, Stage).
type Claim struct {
	AssemblyCode    string
	Stage           stages.ID
	RequestedBy     int64
	RequestedByName string
	RequestDate     time.Time
}

type ClaimKind int

const (
	ClaimAccepted ClaimKind = iota
	ClaimConflict
	ClaimAssemblyNotFound
	ClaimStageNotInPipeline
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimAccepted:
		return "accepted"
	case ClaimConflict:
		return "conflict"
	case ClaimAssemblyNotFound:
		return "assembly_not_found"
	case ClaimStageNotInPipeline:
		return "stage_not_in_pipeline"
	default:
		return "unknown"
	}
}

// ClaimOutcome is returned per claim, in input order.
type ClaimOutcome struct {
	Claim Claim
	Kind  ClaimKind

	// Request is set for ClaimAccepted.
	Request *models.InspectionRequest

	// For ClaimConflict: who holds the active request and since when.
	ExistingRequester string
	ExistingDate      time.Time
}

// AssemblyWriter is the assembly side of a request transaction.
type AssemblyWriter interface {
	GetAssembly(ctx context.Context, code string) (*models.AssemblyRecord, error)
	// SetStageDate returns the number of assembly rows updated; date nil clears the stage.
	SetStageDate(ctx context.Context, code string, stage stages.ID, date *time.Time) (int64, error)
}

// RequestMutation runs while the request row is locked. It mutates req in
// place; the store persists req after a nil return and discards everything
// (assembly writes included) on error.
type RequestMutation func(ctx context.Context, req *models.InspectionRequest, assemblies AssemblyWriter) error
