package model

import "time"

// ─── Requests ────────────────────────────────────────────────────────────────

// CreateAccountRequest is the payload for POST /users, /vendors and /admins.
type CreateAccountRequest struct {
	// UID is only honoured when an admin registers another admin.
	UID             string `json:"uid"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	PayoutRecipient string `json:"payoutRecipient"`
}

// ServiceRequest is the payload for creating or editing a service.
type ServiceRequest struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
}

// CreateEventRequest is the payload for POST /events.
type CreateEventRequest struct {
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Services    []string `json:"services"`
}

// StatusChangeRequest is the payload for PATCH /vendor/bookings/{id}.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// ReviewRequest is the payload for POST /reviews.
type ReviewRequest struct {
	BookingID string `json:"bookingId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// GuestInput is one guest in an upload.
type GuestInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// UploadGuestsRequest is the payload for POST /events/{id}/guests.
type UploadGuestsRequest struct {
	Guests []GuestInput `json:"guests"`
}

// CreateTransactionRequest is the payload for POST /transactions.
type CreateTransactionRequest struct {
	UserName  string  `json:"userName"`
	EventName string  `json:"eventName"`
	EventID   string  `json:"eventId"`
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	Reference string  `json:"reference"`
}

// TransactionQuery carries the raw filters of GET /transactions. Dates are
// YYYY-MM-DD; EndDate is inclusive.
type TransactionQuery struct {
	Type      string
	Status    string
	EventID   string
	Search    string
	StartDate string
	EndDate   string
	Page      int
	Limit     int
}

// ─── Responses ───────────────────────────────────────────────────────────────

// MessageResponse is the success envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateEventResponse reports the event and how many booking requests went out.
type CreateEventResponse struct {
	Message         string `json:"message"`
	EventID         string `json:"eventId"`
	BookingRequests int    `json:"bookingRequests"`
}

// CalendarOutcome reports one calendar entry attempt after a booking is
// accepted.
type CalendarOutcome struct {
	Party   string `json:"party"`
	Created bool   `json:"created"`
	Link    string `json:"link,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// StatusChangeResult is returned after a booking status change.
type StatusChangeResult struct {
	Message            string            `json:"message"`
	BookingID          string            `json:"bookingId"`
	Status             BookingStatus     `json:"status"`
	CompletedBookingID string            `json:"completedBookingId,omitempty"`
	Calendar           []CalendarOutcome `json:"calendar,omitempty"`
}

// InvitationFailure names a guest whose invitation could not be delivered.
// Guests are identified by list position so no contact data leaks.
type InvitationFailure struct {
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// InvitationReport summarises one SendInvitations run.
type InvitationReport struct {
	Sent        int                 `json:"sent"`
	Skipped     int                 `json:"skipped"`
	Failed      []InvitationFailure `json:"failed"`
	InvitesSent bool                `json:"invitesSent"`
}

// RSVPOutcome is the result of an RSVP attempt.
type RSVPOutcome string

const (
	RSVPClosed           RSVPOutcome = "closed"
	RSVPAlreadyResponded RSVPOutcome = "already_responded"
	RSVPRecorded         RSVPOutcome = "recorded"
)

// RSVPResult carries the outcome and the guest's stored status.
type RSVPResult struct {
	Outcome  RSVPOutcome
	Status   RSVPStatus
	Deadline time.Time
}

// PaymentResult is returned after a vendor payout.
type PaymentResult struct {
	Message         string     `json:"message"`
	BookingID       string     `json:"bookingId"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	PayoutReference string     `json:"payoutReference,omitempty"`
	TransactionID   string     `json:"transactionId,omitempty"`
}

// ReconcilePayoutRequest settles a payout left in progress. An empty
// Reference means no money moved and the booking returns to pending.
type ReconcilePayoutRequest struct {
	Reference string `json:"reference"`
}

// TransactionPage is one page of a filtered transaction listing.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	TotalPages   int           `json:"totalPages"`
}

// ─── Views ───────────────────────────────────────────────────────────────────

// ServiceVendor pairs a booked service with its vendor.
type ServiceVendor struct {
	ServiceName string `json:"serviceName"`
	VendorName  string `json:"vendorName"`
}

// AdminEventView is one row of the admin event listing.
type AdminEventView struct {
	Event
	CustomerName string          `json:"customerName"`
	ServiceInfo  []ServiceVendor `json:"serviceInfo"`
	InvitesSent  bool            `json:"invitesSent"`
}

// CustomerBookingView is an active booking as shown to the customer.
type CustomerBookingView struct {
	ID          string        `json:"id"`
	VendorName  string        `json:"vendorName"`
	ServiceName string        `json:"serviceName"`
	Category    string        `json:"category"`
	Price       float64       `json:"price"`
	Status      BookingStatus `json:"status"`
}

// CustomerEventView is one of the caller's events with its bookings and guests.
type CustomerEventView struct {
	Event
	Bookings          []CustomerBookingView  `json:"bookings"`
	CompletedBookings []CompletedBookingView `json:"completedBookings"`
	Guests            []GuestView            `json:"guests"`
	InvitesSent       bool                   `json:"invitesSent"`
}

// VendorBookingView is an active booking request as shown to the vendor.
type VendorBookingView struct {
	BookingRequest
	CustomerName string `json:"customerName"`
	ServiceName  string `json:"serviceName"`
	Event        Event  `json:"event"`
}

// CompletedBookingView is a completed booking with display names.
type CompletedBookingView struct {
	CompletedBooking
	CustomerName string `json:"customerName"`
	VendorName   string `json:"vendorName"`
	EventName    string `json:"eventName"`
	ServiceName  string `json:"serviceName"`
}

// MonthlyStat is a vendor's paid earnings for one month.
type MonthlyStat struct {
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	TotalEarnings float64 `json:"totalEarnings"`
	Count         int     `json:"count"`
}

// ReviewView is a review with display names.
type ReviewView struct {
	VendorReview
	CustomerName string `json:"customerName"`
	ServiceName  string `json:"serviceName"`
	EventName    string `json:"eventName"`
}
