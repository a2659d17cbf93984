package models

import "time"

// Event groups ticket types under one sale window. It is owned by the admin
// side and only synced into this service.
type Event struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	CloseTime       *time.Time `json:"close_time,omitempty"`
	VerificationPIN string     `gorm:"type:varchar(32)" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	TicketTypes []TicketType `gorm:"foreignKey:EventID" json:"ticket_types,omitempty"`
}

// SaleClosed reports whether the event stopped selling at t.
func (e *Event) SaleClosed(t time.Time) bool {
	return e.CloseTime != nil && t.After(*e.CloseTime)
}

type TicketType struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     uint       `gorm:"not null;index" json:"event_id"`
	Name        string     `gorm:"not null" json:"name"`
	Price       int64      `gorm:"not null" json:"price"`
	Capacity    int        `gorm:"not null;default:0" json:"capacity"`
	Sold        int        `gorm:"not null;default:0" json:"sold"`
	SaleStartAt *time.Time `json:"sale_start_at,omitempty"`
	SaleEndAt   *time.Time `json:"sale_end_at,omitempty"`
	Disabled    bool       `gorm:"not null;default:false" json:"disabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *TicketType) Unlimited() bool {
	return t.Capacity == 0
}

// InWindow reports whether at falls inside the optional sale window.
func (t *TicketType) InWindow(at time.Time) bool {
	if t.SaleStartAt != nil && at.Before(*t.SaleStartAt) {
		return false
	}
	if t.SaleEndAt != nil && at.After(*t.SaleEndAt) {
		return false
	}
	return true
}

// Remaining is nil for unlimited ticket types.
func (t *TicketType) Remaining() *int {
	if t.Unlimited() {
		return nil
	}
	r := t.Capacity - t.Sold
	if r < 0 {
		r = 0
	}
	return &r
}

func (t *TicketType) SoldOut() bool {
	return !t.Unlimited() && t.Sold >= t.Capacity
}

type Referrer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"not null;uniqueIndex:idx_referrer_event_code" json:"event_id"`
	Name      string    `gorm:"not null" json:"name"`
	Code      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_referrer_event_code" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
