package models

import (
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/stages"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestConfirmed RequestStatus = "CONFIRMED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

var requestStatusLabels = map[string]map[RequestStatus]string{
	"en": {
		RequestPending:   "Pending",
		RequestApproved:  "Approved",
		RequestConfirmed: "Confirmed",
		RequestRejected:  "Rejected",
		RequestCancelled: "Cancelled",
	},
	"ko": {
		RequestPending:   "대기중",
		RequestApproved:  "승인됨",
		RequestConfirmed: "확정됨",
		RequestRejected:  "거부됨",
		RequestCancelled: "취소됨",
	},
}

func (s RequestStatus) Label(lang string) string {
	t, ok := requestStatusLabels[lang]
	if !ok {
		t = requestStatusLabels["en"]
	}
	if l, ok := t[s]; ok {
		return l
	}
	return string(s)
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestConfirmed, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// ParseRequestStatus понимает и старые значения из выгрузок: 'pending', '대기중' и т.п.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	v := strings.TrimSpace(s)
	if st := RequestStatus(strings.ToUpper(v)); st.Valid() {
		return st, true
	}
	for _, labels := range requestStatusLabels {
		for st, l := range labels {
			if strings.EqualFold(l, v) {
				return st, true
			}
		}
	}
	return "", false
}

type InspectionRequest struct {
	ID              uint64
	AssemblyCode    string
	Stage           stages.ID
	Status          RequestStatus
	RequestedBy     int64
	RequestedByName string
	RequestDate     time.Time

	ApprovedBy     *int64
	ApprovedByName *string
	ApprovedAt     *time.Time

	ConfirmedBy     *int64
	ConfirmedByName *string
	ConfirmedDate   *time.Time

	RejectedBy     *int64
	RejectedByName *string
	RejectReason   *string

	CancelledBy *int64
	CancelledAt *time.Time

	RollbackReasonID *int
	RollbackNote     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active requests block new claims for the same assembly and stage.
func (r *InspectionRequest) Active() bool {
	return r.Status != RequestCancelled
}

type RequestFilter struct {
	Status       RequestStatus
	Stage        stages.ID
	AssemblyCode string

	// RequestedBy ограничивает выборку заявками одного пользователя.
	RequestedBy *int64
	// ExcludeStatuses is applied after Status.
	ExcludeStatuses []RequestStatus

	Limit  int
	Offset int
}
