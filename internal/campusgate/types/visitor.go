package types

import "time"

type VisitorPassRequest struct {
	VisitorName    string    `json:"visitorName"`
	VisitorEmail   string    `json:"visitorEmail,omitempty"`
	VisitorPhone   string    `json:"visitorPhone,omitempty"`
	Company        string    `json:"company,omitempty"`
	Purpose        string    `json:"purpose"`
	HostEmployeeID string    `json:"hostEmployeeId"`
	ValidFrom      time.Time `json:"validFrom"`
	ValidUntil     time.Time `json:"validUntil"`
	AllowedGates   []string  `json:"allowedGates,omitempty"`
	PhotoURL       string    `json:"photoUrl,omitempty"`
}

type HostInfo struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
}

type QRCodeInfo struct {
	Content string `json:"content"`
}

type VisitorPass struct {
	PassID       string     `json:"passId"`
	VisitorName  string     `json:"visitorName"`
	VisitorEmail string     `json:"visitorEmail,omitempty"`
	VisitorPhone string     `json:"visitorPhone,omitempty"`
	Company      string     `json:"company,omitempty"`
	Purpose      string     `json:"purpose"`
	Host         HostInfo   `json:"host"`
	ValidFrom    time.Time  `json:"validFrom"`
	ValidUntil   time.Time  `json:"validUntil"`
	AllowedGates []GateInfo `json:"allowedGates"`
	QRCode       QRCodeInfo `json:"qrCode"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    *Actor     `json:"createdBy,omitempty"`
}

type VisitorPassList struct {
	Visitors   []VisitorPass `json:"visitors"`
	Pagination Pagination    `json:"pagination"`
}
