// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CoughEvent lifecycle statuses.
const (
	StatusAnalyzing  = "ANALYZING"
	StatusPositiveTB = "POSITIVE_TB"
	StatusNegativeTB = "NEGATIVE_TB"
)

// Device connectivity statuses.
const (
	DeviceOnline  = "ONLINE"
	DeviceOffline = "OFFLINE"
)

// Notification types.
const (
	NotificationPositiveTBResult = "POSITIVE_TB_RESULT"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// CoughEvent represents one submitted cough recording and its
// classification lifecycle.
type CoughEvent struct {
	ID                 string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID             *string    `gorm:"index;type:varchar(36)" json:"userId,omitempty"`
	User               *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	DeviceID           *uint      `gorm:"index" json:"-"`
	Device             *Device    `json:"device,omitempty"`
	Timestamp          time.Time  `gorm:"index:idx_cough_events_timestamp" json:"timestamp"`
	DirectionOfArrival *float64   `json:"directionOfArrival,omitempty"`
	AudioPath          string     `json:"audioPath"`
	Status             string     `gorm:"index;type:varchar(20);default:ANALYZING" json:"status"`
	IsTBCough          *bool      `json:"-"`
	ConfidenceScore    *float64   `json:"-"`
	Notes              []CoughNote `gorm:"foreignKey:CoughEventID;constraint:OnDelete:CASCADE" json:"notes"`
	AcknowledgedBy     *string    `gorm:"type:varchar(36)" json:"acknowledgedBy,omitempty"`
	AcknowledgedAt     *time.Time `json:"acknowledgedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// DetectionResult is the resolved classification for a cough event.
type DetectionResult struct {
	IsTBCough       bool    `json:"isTBCough"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// DetectionResult returns the classification outcome, or nil while the
// event is still ANALYZING.
func (e *CoughEvent) DetectionResult() *DetectionResult {
	if e.IsTBCough == nil || e.ConfidenceScore == nil {
		return nil
	}
	return &DetectionResult{
		IsTBCough:       *e.IsTBCough,
		ConfidenceScore: *e.ConfidenceScore,
	}
}

// BeforeCreate assigns a UUID primary key when none was set.
func (e *CoughEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// CoughNote is a staff note attached to a cough event. Notes are returned
// most recent first.
type CoughNote struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	CoughEventID string    `gorm:"index;not null;type:varchar(36)" json:"-"`
	AuthorID     string    `gorm:"type:varchar(36)" json:"-"`
	Author       *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content      string    `gorm:"type:text" json:"content"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

// Device represents a registered edge device.
type Device struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	DeviceID      string     `gorm:"uniqueIndex;not null" json:"deviceId"`
	Name          string     `gorm:"not null" json:"name"`
	Location      string     `json:"location,omitempty"`
	Status        string     `gorm:"type:varchar(10);default:OFFLINE" json:"status"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CoughNotification is a staff-facing alert raised for a positive result.
// ReadBy is set at most once; the first acknowledger wins.
type CoughNotification struct {
	ID           string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Type         string      `gorm:"type:varchar(30);not null" json:"type"`
	Message      string      `gorm:"not null" json:"message"`
	CoughEventID string      `gorm:"index;not null;type:varchar(36)" json:"coughEventId"`
	CoughEvent   *CoughEvent `gorm:"foreignKey:CoughEventID" json:"coughEvent,omitempty"`
	ReadBy       *string     `gorm:"type:varchar(36)" json:"readBy,omitempty"`
	ReadAt       *time.Time  `json:"readAt,omitempty"`
	CreatedAt    time.Time   `gorm:"index" json:"createdAt"`
}

// BeforeCreate assigns a UUID primary key when none was set.
func (n *CoughNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// User is a staff or end-user account authenticated through web sessions.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Name         string    `gorm:"not null" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"type:varchar(10);default:user" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a UUID primary key when none was set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
