package domain

import "time"

// Idempotency records the message produced by a previously processed send
// request, keyed by (route, key). It lets clients retry POST /mensaje and
// POST /mensajeArchivo without appending the same message twice.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Route     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_route_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_route_key,priority:2"`
	MessageID uint      `gorm:"not null"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
