package messages

import "time"

// DateLayout is the wire format of stage dates.
const DateLayout = "2006-01-02"

// AssemblyImported carries a batch of assembly rows from the workbook import.
type AssemblyImported struct {
	BatchID    string         `json:"batch_id"`
	Source     string         `json:"source,omitempty"`
	ImportedAt time.Time      `json:"imported_at"`
	Assemblies []AssemblyItem `json:"assemblies"`
}

type AssemblyItem struct {
	AssemblyCode string   `json:"assembly_code"`
	Pipeline     string   `json:"pipeline"`
	Zone         string   `json:"zone,omitempty"`
	Item         string   `json:"item,omitempty"`
	Company      string   `json:"company,omitempty"`
	WeightGross  *float64 `json:"weight_gross,omitempty"`

	// StageDates: stage id -> "2006-01-02"; "1900-01-01" marks the stage as not required.
	StageDates map[string]string `json:"stage_dates,omitempty"`
}
