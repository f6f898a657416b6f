package domain

import "time"

// Member is a community member eligible for broadcasts when active
type Member struct {
	ID          string `db:"member_id"`
	Name        string `db:"name"`
	PhoneNumber string `db:"phone_number"`
	HouseID     string `db:"house_id"`
	Lane        string `db:"lane"`
	Active      bool   `db:"active"`

	// Payments holds only the active payments that fall in the queried months
	Payments []Payment `db:"-"`
}

// Payment is a monthly payment record of a member
type Payment struct {
	PaymentID string    `db:"payment_id"`
	MemberID  string    `db:"member_id"`
	Amount    float64   `db:"amount"`
	Month     time.Time `db:"month"`
	Partial   bool      `db:"partial"`
	Active    bool      `db:"active"`
}

// Recipient is a member resolved as a target for a job's message
type Recipient struct {
	ID          string
	Name        string
	PhoneNumber string
}
