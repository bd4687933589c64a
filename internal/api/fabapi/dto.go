package fabapi

import (
	"time"

	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/services/inspections"
	"github.com/BearBump/FabTrack/internal/services/progress"
	"github.com/BearBump/FabTrack/internal/stages"
)

const dateLayout = "2006-01-02"

// date marshals as a bare day.
type date time.Time

func (d date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format(dateLayout) + `"`), nil
}

func datePtr(t *time.Time) *date {
	if t == nil {
		return nil
	}
	d := date(*t)
	return &d
}

type createRequestsBody struct {
	AssemblyCodes []string `json:"assembly_codes"`
	Stage         string   `json:"stage"`
	RequestDate   string   `json:"request_date"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type confirmBody struct {
	ConfirmedDate string `json:"confirmed_date"`
}

type cancelBody struct {
	RollbackReasonID *int   `json:"rollback_reason_id"`
	Note             string `json:"note"`
}

type requestDTO struct {
	ID              uint64 `json:"id"`
	AssemblyCode    string `json:"assembly_code"`
	Stage           string `json:"stage"`
	StageName       string `json:"stage_name,omitempty"`
	Status          string `json:"status"`
	StatusLabel     string `json:"status_label"`
	RequestedBy     int64  `json:"requested_by"`
	RequestedByName string `json:"requested_by_name"`
	RequestDate     date   `json:"request_date"`

	ApprovedBy     *int64     `json:"approved_by,omitempty"`
	ApprovedByName *string    `json:"approved_by_name,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`

	ConfirmedBy     *int64  `json:"confirmed_by,omitempty"`
	ConfirmedByName *string `json:"confirmed_by_name,omitempty"`
	ConfirmedDate   *date   `json:"confirmed_date,omitempty"`

	RejectedBy     *int64  `json:"rejected_by,omitempty"`
	RejectedByName *string `json:"rejected_by_name,omitempty"`
	RejectReason   *string `json:"reject_reason,omitempty"`

	CancelledBy *int64     `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	RollbackReasonID *int    `json:"rollback_reason_id,omitempty"`
	RollbackNote     *string `json:"rollback_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRequestDTO(r *models.InspectionRequest, lang string) requestDTO {
	out := requestDTO{
		ID:               r.ID,
		AssemblyCode:     r.AssemblyCode,
		Stage:            string(r.Stage),
		Status:           string(r.Status),
		StatusLabel:      r.Status.Label(lang),
		RequestedBy:      r.RequestedBy,
		RequestedByName:  r.RequestedByName,
		RequestDate:      date(r.RequestDate),
		ApprovedBy:       r.ApprovedBy,
		ApprovedByName:   r.ApprovedByName,
		ApprovedAt:       r.ApprovedAt,
		ConfirmedBy:      r.ConfirmedBy,
		ConfirmedByName:  r.ConfirmedByName,
		ConfirmedDate:    datePtr(r.ConfirmedDate),
		RejectedBy:       r.RejectedBy,
		RejectedByName:   r.RejectedByName,
		RejectReason:     r.RejectReason,
		CancelledBy:      r.CancelledBy,
		CancelledAt:      r.CancelledAt,
		RollbackReasonID: r.RollbackReasonID,
		RollbackNote:     r.RollbackNote,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if st, ok := stages.Lookup(r.Stage); ok {
		out.StageName = st.DisplayName
	}
	return out
}

func toRequestDTOs(rs []*models.InspectionRequest, lang string) []requestDTO {
	out := make([]requestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequestDTO(r, lang))
	}
	return out
}

type duplicateDTO struct {
	AssemblyCode      string `json:"assembly_code"`
	ExistingRequester string `json:"existing_requester"`
	ExistingDate      date   `json:"existing_date"`
}

type skippedDTO struct {
	AssemblyCode string `json:"assembly_code"`
	Reason       string `json:"reason"`
}

type createResultDTO struct {
	InsertedCount  int            `json:"inserted_count"`
	Inserted       []requestDTO   `json:"inserted"`
	DuplicateItems []duplicateDTO `json:"duplicate_items"`
	SkippedItems   []skippedDTO   `json:"skipped_items"`
}

func toCreateResultDTO(res *inspections.CreateResult, lang string) createResultDTO {
	out := createResultDTO{
		InsertedCount:  res.InsertedCount,
		Inserted:       toRequestDTOs(res.Inserted, lang),
		DuplicateItems: make([]duplicateDTO, 0, len(res.DuplicateItems)),
		SkippedItems:   make([]skippedDTO, 0, len(res.SkippedItems)),
	}
	for _, d := range res.DuplicateItems {
		out.DuplicateItems = append(out.DuplicateItems, duplicateDTO{
			AssemblyCode:      d.AssemblyCode,
			ExistingRequester: d.ExistingRequester,
			ExistingDate:      date(d.ExistingDate),
		})
	}
	for _, s := range res.SkippedItems {
		out.SkippedItems = append(out.SkippedItems, skippedDTO(s))
	}
	return out
}

type progressDTO struct {
	*progress.View
	StatusLabel string `json:"status_label"`
}

type rollbackReasonDTO struct {
	ID           int    `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
}
