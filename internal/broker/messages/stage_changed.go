package messages

import "time"

const (
	StageChangeConfirmed  = "CONFIRMED"
	StageChangeRolledBack = "ROLLED_BACK"
)

// StageChanged is published after a stage date is written or cleared.
type StageChanged struct {
	EventID      string     `json:"event_id"`
	Change       string     `json:"change"`
	RequestID    uint64     `json:"request_id"`
	AssemblyCode string     `json:"assembly_code"`
	Stage        string     `json:"stage"`
	StageDate    *time.Time `json:"stage_date,omitempty"`
	ActorID      int64      `json:"actor_id"`

	RollbackReasonID *int `json:"rollback_reason_id,omitempty"`

	Status        string    `json:"status"`
	LastCompleted string    `json:"last_completed_stage,omitempty"`
	NextStage     string    `json:"next_stage,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
