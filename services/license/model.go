package license

import (
	"time"

	"gorm.io/datatypes"
)

// License is the persisted credential for one (owner, software_id) slot. ID is
// the address derived from that pair.
type License struct {
	ID                  string    `gorm:"column:id;primaryKey;size:64" json:"address"`
	CreatedAt           time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"-"`
	Owner               Identity  `gorm:"column:owner;size:64;not null;uniqueIndex:idx_license_owner_software" json:"owner"`
	Authority           Identity  `gorm:"column:authority;size:64;not null" json:"authority"`
	SoftwareID          uint64    `gorm:"column:software_id;not null;uniqueIndex:idx_license_owner_software" json:"softwareId"`
	PurchaseTimestamp   int64     `gorm:"column:purchase_timestamp;not null" json:"purchaseTimestamp"`
	ExpirationTimestamp int64     `gorm:"column:expiration_timestamp;not null" json:"expirationTimestamp"`
	IsActive            bool      `gorm:"column:is_active;not null" json:"isActive"`
}

func (License) TableName() string {
	return "licenses"
}

type EventType string

const (
	EventIssued        EventType = "license.issued"
	EventRenewed       EventType = "license.renewed"
	EventStatusChanged EventType = "license.status_changed"
)

// Event is the outbox row written in the same transaction as the transition
// it describes.
type Event struct {
	ID                  string         `gorm:"column:id;primaryKey"`
	CreatedAt           time.Time      `gorm:"column:created_at;index"`
	Type                EventType      `gorm:"column:type;size:64;not null"`
	LicenseID           string         `gorm:"column:license_id;size:64;not null;index"`
	Owner               Identity       `gorm:"column:owner;size:64;not null"`
	SoftwareID          uint64         `gorm:"column:software_id;not null"`
	ExpirationTimestamp int64          `gorm:"column:expiration_timestamp;not null"`
	IsActive            bool           `gorm:"column:is_active;not null"`
	OccurredAt          int64          `gorm:"column:occurred_at;not null"`
	Payload             datatypes.JSON `gorm:"column:payload"`
	DispatchedAt        *time.Time     `gorm:"column:dispatched_at;index"`
}

func (Event) TableName() string {
	return "license_events"
}

// EventPayload is the body of the license:event task.
type EventPayload struct {
	EventID             string    `json:"eventId"`
	Type                EventType `json:"type"`
	Address             string    `json:"address"`
	Owner               Identity  `json:"owner"`
	SoftwareID          uint64    `json:"softwareId"`
	ExpirationTimestamp int64     `json:"expirationTimestamp"`
	IsActive            bool      `json:"isActive"`
	OccurredAt          int64     `json:"occurredAt"`
}

// Validity is returned only for a usable license; an inactive or expired one
// is reported as LicenseNotActive or LicenseExpired instead.
type Validity struct {
	Address             string `json:"address"`
	ExpirationTimestamp int64  `json:"expirationTimestamp"`
	CheckedAt           int64  `json:"checkedAt"`
}
