package domain

import "time"

// DoctorConfig is the persisted compensation configuration of one doctor.
type DoctorConfig struct {
	DoctorID     string        `json:"doctorId"`
	TenantID     string        `json:"tenantId"`
	BaseRule     Rule          `json:"baseRule"`
	Exceptions   []Exception   `json:"exceptions"`
	ProductCosts []ProductCost `json:"productCosts"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ConfigChangedEvent is published after a doctor configuration is saved or deleted.
type ConfigChangedEvent struct {
	DoctorID  string `json:"doctorId"`
	Operation string `json:"operation"`
	Deleted   bool   `json:"deleted,omitempty"`
	Warnings  int    `json:"warnings"`
}
