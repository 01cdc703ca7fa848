package types

import "time"

type ScanRequest struct {
	QRCode        string    `json:"qrCode"`
	GateID        string    `json:"gateId"`
	ScanTimestamp time.Time `json:"scanTimestamp"`
}

// SubjectInfo is the snapshot of a scanned subject returned to the gate.
// Visitor-only fields are omitted for students and staff.
type SubjectInfo struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	PhotoURL   string     `json:"photoUrl,omitempty"`
	Status     string     `json:"status,omitempty"`
	Purpose    string     `json:"purpose,omitempty"`
	HostName   string     `json:"hostName,omitempty"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
}

// AccessDecision is the outcome of a QR scan. Denials that produced a
// violation carry its id and type.
type AccessDecision struct {
	Valid                    bool         `json:"valid"`
	AccessGranted            bool         `json:"accessGranted"`
	SubjectType              string       `json:"subjectType,omitempty"`
	Subject                  *SubjectInfo `json:"subject,omitempty"`
	Message                  string       `json:"message"`
	RequiresFaceVerification bool         `json:"requiresFaceVerification"`
	ViolationType            string       `json:"violationType,omitempty"`
	ViolationID              string       `json:"violationId,omitempty"`
	SubjectPersisted         *bool        `json:"subjectPersisted,omitempty"`
}

type FaceVerifyRequest struct {
	SubjectID     string    `json:"subjectId"`
	SubjectType   string    `json:"subjectType"`
	FaceImage     string    `json:"faceImage"` // base64, optionally as a data URL
	GateID        string    `json:"gateId"`
	ScanTimestamp time.Time `json:"scanTimestamp"`
}

type FaceDecision struct {
	Verified               bool         `json:"verified"`
	Confidence             float64      `json:"confidence"`
	AccessGranted          bool         `json:"accessGranted"`
	Message                string       `json:"message"`
	ViolationType          string       `json:"violationType,omitempty"`
	ViolationID            string       `json:"violationId,omitempty"`
	SubjectPersisted       bool         `json:"subjectPersisted,omitempty"`
	CapturedImagePersisted bool         `json:"capturedImagePersisted,omitempty"`
	Subject                *SubjectInfo `json:"subject,omitempty"`
	LockoutUntil           *time.Time   `json:"lockoutUntil,omitempty"`
	FailedAttemptCount     int          `json:"failedAttemptCount,omitempty"`
}
