package types

import "time"

type VehicleEntryRequest struct {
	LicensePlate   string    `json:"licensePlate"`
	GateID         string    `json:"gateId"`
	EntryImagePath string    `json:"entryImagePath,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type VehicleExitRequest struct {
	LicensePlate  string    `json:"licensePlate"`
	GateID        string    `json:"gateId"`
	ExitImagePath string    `json:"exitImagePath,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type EntryResult struct {
	EntryID           string    `json:"entryId"`
	LicensePlate      string    `json:"licensePlate"`
	VehicleID         *string   `json:"vehicleId"`
	Registered        bool      `json:"registered"`
	EntryTime         time.Time `json:"entryTime"`
	Status            string    `json:"status"`
	AlertCreated      bool      `json:"alertCreated"`
	AlertID           *string   `json:"alertId"`
	SupersededEntryID string    `json:"supersededEntryId,omitempty"`
	Message           string    `json:"message"`
}

type ExitResult struct {
	EntryID      string    `json:"entryId"`
	LicensePlate string    `json:"licensePlate"`
	EntryTime    time.Time `json:"entryTime"`
	ExitTime     time.Time `json:"exitTime"`
	Duration     string    `json:"duration"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
}

type RegisterVehicleRequest struct {
	LicensePlate string `json:"licensePlate"`
	OwnerType    string `json:"ownerType"`
	OwnerID      string `json:"ownerId,omitempty"`
	OwnerName    string `json:"ownerName"`
	VehicleType  string `json:"vehicleType,omitempty"`
	Color        string `json:"color,omitempty"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
}

type VehicleView struct {
	ID           string    `json:"id"`
	LicensePlate string    `json:"licensePlate"`
	OwnerType    string    `json:"ownerType"`
	OwnerID      string    `json:"ownerId,omitempty"`
	OwnerName    string    `json:"ownerName"`
	VehicleType  string    `json:"vehicleType"`
	Color        string    `json:"color,omitempty"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type VehicleList struct {
	Vehicles   []VehicleView `json:"vehicles"`
	Total      int           `json:"total"`
	Pagination Pagination    `json:"pagination"`
}

type EntryView struct {
	ID           string     `json:"id"`
	LicensePlate string     `json:"licensePlate"`
	VehicleID    *string    `json:"vehicleId"`
	GateID       string     `json:"gateId"`
	EntryTime    time.Time  `json:"entryTime"`
	ExitTime     *time.Time `json:"exitTime"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
}

type EntryQuery struct {
	Plate  string
	Status string
	Open   bool
	PageQuery
}

type EntryList struct {
	Entries    []EntryView `json:"entries"`
	Pagination Pagination  `json:"pagination"`
}

type AlertView struct {
	ID           string         `json:"id"`
	LicensePlate string         `json:"licensePlate"`
	Timestamp    time.Time      `json:"timestamp"`
	AlertType    string         `json:"alertType"`
	GateID       string         `json:"gateId"`
	Image        string         `json:"capturedImage,omitempty"`
	Details      map[string]any `json:"details"`
	Resolution
}

type AlertQuery struct {
	Type     string
	Resolved *bool
	PageQuery
}

type AlertList struct {
	Alerts     []AlertView `json:"alerts"`
	Pagination Pagination  `json:"pagination"`
}
