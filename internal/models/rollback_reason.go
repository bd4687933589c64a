package models

type RollbackReason struct {
	ID           int
	Text         string
	DisplayOrder int
}

const RollbackReasonOther = 7

// RollbackReasons is the fixed catalogue; storage seeds its table from it.
var RollbackReasons = []RollbackReason{
	{ID: 1, Text: "Inspection failed, rework required", DisplayOrder: 1},
	{ID: 2, Text: "Quality issue found", DisplayOrder: 2},
	{ID: 3, Text: "Drawing change, rework required", DisplayOrder: 3},
	{ID: 4, Text: "Entered by mistake", DisplayOrder: 4},
	{ID: 5, Text: "Equipment problem, rework required", DisplayOrder: 5},
	{ID: 6, Text: "Customer requirement changed", DisplayOrder: 6},
	{ID: RollbackReasonOther, Text: "Other", DisplayOrder: 7},
}

func LookupRollbackReason(id int) (RollbackReason, bool) {
	for _, r := range RollbackReasons {
		if r.ID == id {
			return r, true
		}
	}
	return RollbackReason{}, false
}
