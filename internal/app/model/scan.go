package model

import "time"

// Scan is one observed visit to a code. Rows are append-only: they are never
// updated, only deleted when the owning code is deleted or reset.
//
// code_reference is deliberately not a database-level foreign key; the
// application maintains referential integrity itself (references never rename,
// and deletion cascades in the repository).
type Scan struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CodeReference string    `gorm:"column:code_reference;size:255;not null;index" json:"code_reference"`
	IP            string    `gorm:"column:ip;size:45" json:"ip"`
	CapturedAt    time.Time `gorm:"column:captured_at;not null;default:now()" json:"captured_at"`
	OS            string    `gorm:"column:os;size:100" json:"os"`
	Browser       string    `gorm:"column:browser;size:100" json:"browser"`
	UserAgent     string    `gorm:"column:user_agent;type:text" json:"user_agent"`
}

func (Scan) TableName() string {
	return "scans"
}
