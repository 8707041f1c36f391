package domain

import (
	"strings"
	"time"
)

// Lead is a call/contact record owned by a manager.
type Lead struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"userId"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidateLead checks required lead fields and normalizes the phone number.
func ValidateLead(l Lead) (Lead, error) {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return Lead{}, &ValidationError{Field: "name", Reason: "required"}
	}
	phone, ok := NormalizePhone(strings.TrimSpace(l.Phone))
	if !ok {
		return Lead{}, &ValidationError{Field: "phone", Reason: "malformed phone number"}
	}
	l.Phone = phone
	l.Note = strings.TrimSpace(l.Note)
	return l, nil
}
