package model

// Code maps a public reference to a redirect destination.
//
// References are chosen by the business (or lifted from the product catalog on
// first scan) and are immutable once created. An inactive code does not redirect
// directly; the resolver degrades it to a fallback unless it can be reactivated.
type Code struct {
	Reference      string `gorm:"column:reference;primaryKey;size:255" json:"reference"`
	Name           string `gorm:"column:name;size:255;not null" json:"name"`
	DestinationURL string `gorm:"column:destination_url;type:text;not null" json:"destination_url"`
	Active         bool   `gorm:"column:active;not null;default:true" json:"active"`
}

func (Code) TableName() string {
	return "codes"
}
