// Package model defines the core domain types for the event planning
// marketplace.
package model

import (
	"strings"
	"time"

	"github.com/khushigoyal02/EMS-back/internal/pii"
)

// Role is an account's role, fixed when the account is created.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Account is a customer, vendor or admin, keyed by the identity provider
// subject.
type Account struct {
	ID              string    `json:"id"`
	UID             string    `json:"uid"`
	Role            Role      `json:"role"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	PayoutRecipient string    `json:"payoutRecipient,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Service is something a vendor sells.
type Service struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendorId"`
	VendorName  string    `json:"vendorName,omitempty"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EventStatus values keep the casing clients already depend on.
type EventStatus string

const (
	EventPending            EventStatus = "pending"
	EventPartiallyConfirmed EventStatus = "Partially-confirmed"
	EventConfirmed          EventStatus = "Confirmed"
	EventCompleted          EventStatus = "Completed"
	EventCancelled          EventStatus = "Cancelled"
)

// Event is owned by one customer. It has either Date (with optional
// StartTime/EndTime) or a StartDate/EndDate range. StartsAt and EndsAt are
// derived from those fields when the event is created.
type Event struct {
	ID             string      `json:"id"`
	CreatedBy      string      `json:"createdBy"`
	Name           string      `json:"name"`
	Location       string      `json:"location"`
	Description    string      `json:"description"`
	Date           string      `json:"date,omitempty"`
	StartTime      string      `json:"startTime,omitempty"`
	EndTime        string      `json:"endTime,omitempty"`
	StartDate      string      `json:"startDate,omitempty"`
	EndDate        string      `json:"endDate,omitempty"`
	StartsAt       time.Time   `json:"startsAt"`
	EndsAt         time.Time   `json:"endsAt"`
	Status         EventStatus `json:"status"`
	Services       []string    `json:"services"`
	EstimatedCost  float64     `json:"estimatedCost"`
	ReminderSentAt *time.Time  `json:"reminderSentAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// RSVPWindow is how long before the first day of an event RSVPs close.
const RSVPWindow = 48 * time.Hour

// FirstDay returns the calendar day the event starts on.
func (e *Event) FirstDay() string {
	if e.StartDate != "" {
		return e.StartDate
	}
	return e.Date
}

// RSVPDeadline is midnight of the first day, in loc, less RSVPWindow.
func (e *Event) RSVPDeadline(loc *time.Location) time.Time {
	day, err := time.ParseInLocation(DateLayout, e.FirstDay(), loc)
	if err != nil {
		start := e.StartsAt.In(loc)
		day = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	}
	return day.Add(-RSVPWindow)
}

// BookingStatus is the lifecycle state of a booking request.
type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingAccepted  BookingStatus = "Accepted"
	BookingDeclined  BookingStatus = "Declined"
	BookingCompleted BookingStatus = "Completed"
)

// ParseBookingStatus accepts the four statuses case-insensitively.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	for _, st := range []BookingStatus{BookingPending, BookingAccepted, BookingDeclined, BookingCompleted} {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// CanTransition reports whether a booking may move from one status to another.
// Pending may become Accepted or Declined; Accepted may become Completed.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingPending:
		return to == BookingAccepted || to == BookingDeclined
	case BookingAccepted:
		return to == BookingCompleted
	}
	return false
}

// BookingRequest asks one vendor to provide one service for one event.
type BookingRequest struct {
	ID         string        `json:"id"`
	EventID    string        `json:"eventId"`
	CustomerID string        `json:"customerId"`
	VendorID   string        `json:"vendorId"`
	ServiceID  string        `json:"serviceId"`
	Status     BookingStatus `json:"status"`
	Price      float64       `json:"price"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// PaymentStatus tracks whether the vendor has been paid for a booking.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaying  PaymentStatus = "paying"
	PaymentPaid    PaymentStatus = "paid"
)

// CompletedBooking replaces a BookingRequest once the vendor marks it
// completed.
type CompletedBooking struct {
	ID               string        `json:"id"`
	BookingRequestID string        `json:"bookingRequestId"`
	CustomerID       string        `json:"customerId"`
	VendorID         string        `json:"vendorId"`
	ServiceID        string        `json:"serviceId"`
	EventID          string        `json:"eventId"`
	Amount           float64       `json:"amount"`
	Status           PaymentStatus `json:"status"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	PayoutReference  string        `json:"payoutReference,omitempty"`
	HasReviewed      bool          `json:"hasReviewed"`
	CompletedAt      time.Time     `json:"completedAt"`
}

// VendorReview is a customer's rating of a completed booking.
type VendorReview struct {
	ID        string    `json:"id"`
	BookingID string    `json:"bookingId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// RSVPStatus is a guest's answer.
type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "Pending"
	RSVPAccepted RSVPStatus = "Accepted"
	RSVPDeclined RSVPStatus = "Declined"
)

// GuestList is the set of guests for one event.
type GuestList struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	InvitesSent bool      `json:"invitesSent"`
	CreatedAt   time.Time `json:"createdAt"`
	Guests      []Guest   `json:"-"`
}

// Guest is the stored form of one guest. Contact details stay sealed until
// the point of use.
type Guest struct {
	ID           string
	GuestListID  string
	Position     int
	Contact      pii.SealedContact
	RSVPStatus   RSVPStatus
	HasResponded bool
	InvitedAt    *time.Time
	RespondedAt  *time.Time
}

// GuestView is a decrypted guest returned to the list owner.
type GuestView struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	RSVPStatus   RSVPStatus `json:"rsvpStatus"`
	HasResponded bool       `json:"hasResponded"`
	InvitedAt    *time.Time `json:"invitedAt,omitempty"`
}

// FlagThreshold is the amount above which a transaction is flagged.
const FlagThreshold = 100000

// Transaction is a ledger entry.
type Transaction struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	EventName string    `json:"eventName"`
	EventID   string    `json:"eventId,omitempty"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Flagged   bool      `json:"flagged"`
}

// IsFlagged reports whether the entry looks suspicious.
func (t *Transaction) IsFlagged() bool {
	return t.Amount > FlagThreshold || t.Status == "failed"
}

// TransactionTypeVendorPayout is the ledger type written for vendor payouts.
const TransactionTypeVendorPayout = "vendor_payout"

// TransactionFilter narrows a transaction listing. Zero values mean "any".
type TransactionFilter struct {
	Type    string
	Status  string
	EventID string
	Search  string
	From    *time.Time
	To      *time.Time
	Page    int
	Limit   int
}

// CalendarToken holds a user's Google OAuth credentials. The refresh token
// is sealed.
type CalendarToken struct {
	UID         string
	SealedToken string
	AccessToken string
	TokenType   string
	Scope       string
	Expiry      time.Time
	UpdatedAt   time.Time
}

// DateLayout and TimeLayout are the wire formats for event days and times.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
