package types

import "time"

type ViolationSubject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

type ViolationView struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	SubjectType *string           `json:"subjectType"`
	Subject     *ViolationSubject `json:"subject"`
	GateID      string            `json:"gateId"`
	GateName    string            `json:"gateName"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Details     map[string]any    `json:"details"`
	Resolution
}

// ViolationQuery carries the raw list filters. Empty strings and nil
// pointers do not filter.
type ViolationQuery struct {
	Type        string
	SubjectType string
	GateID      string
	StartDate   *time.Time
	EndDate     *time.Time
	Resolved    *bool
	PageQuery
}

type ViolationList struct {
	Violations []ViolationView `json:"violations"`
	Pagination Pagination      `json:"pagination"`
}
