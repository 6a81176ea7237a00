// Package models holds the records stored by the API and the shapes it exchanges over HTTP.
package models

import (
	"time"
)

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	RollNumber   *string   `json:"rollNumber"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserSummary is the public projection of a user embedded in registrations.
type UserSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	RollNumber *string `json:"rollNumber"`
}

// UserWithCount is a user row in the admin user list.
type UserWithCount struct {
	User
	RegistrationCount int `json:"registrationCount"`
}

// Event is a scheduled campus event with a fixed number of seats.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time"`
	Capacity    int       `json:"capacity"`
	ImageURL    *string   `json:"imageUrl"`
	Category    *string   `json:"category"`
	Organizer   *string   `json:"organizer"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EventView is an event annotated for a particular viewer.
type EventView struct {
	Event
	RegisteredCount int  `json:"registeredCount"`
	IsRegistered    bool `json:"isRegistered"`
	IsFull          bool `json:"isFull"`
}

// IsFull is the capacity guard: no seat is left once registered reaches capacity.
func IsFull(registered, capacity int) bool {
	return registered >= capacity
}

// Registration is a user's pass for one event. Token is the opaque value
// encoded in the QR image and is only ever matched exactly.
type Registration struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	EventID      string       `json:"eventId"`
	Token        string       `json:"qrCodeData"`
	QRCode       string       `json:"qrCode"`
	Attended     bool         `json:"attended"`
	AttendedAt   *time.Time   `json:"attendedAt"`
	RegisteredAt time.Time    `json:"registeredAt"`
	User         *UserSummary `json:"user,omitempty"`
	Event        *Event       `json:"event,omitempty"`
}

// EventRegistrationStats summarises attendance for one event.
type EventRegistrationStats struct {
	Total    int `json:"total"`
	Attended int `json:"attended"`
	Pending  int `json:"pending"`
}

// EventRegistrations is the admin view of an event's roster.
type EventRegistrations struct {
	Event         Event                  `json:"event"`
	Registrations []Registration         `json:"registrations"`
	Stats         EventRegistrationStats `json:"stats"`
}

// PopularEvent is an event ranked by registrations.
type PopularEvent struct {
	Event
	RegistrationCount int `json:"registrationCount"`
}

// DashboardStats is the admin dashboard payload. The figures come from
// separate queries and are not a single consistent snapshot.
type DashboardStats struct {
	TotalUsers          int            `json:"totalUsers"`
	TotalEvents         int            `json:"totalEvents"`
	TotalRegistrations  int            `json:"totalRegistrations"`
	UpcomingEvents      int            `json:"upcomingEvents"`
	AttendedCount       int            `json:"attendedCount"`
	AttendanceRate      float64        `json:"attendanceRate"`
	RecentRegistrations []Registration `json:"recentRegistrations"`
	PopularEvents       []PopularEvent `json:"popularEvents"`
}

// Page describes one page of a listing.
type Page struct {
	TotalEvents int `json:"totalEvents"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

// EventList is a page of annotated events.
type EventList struct {
	Events   []EventView `json:"events"`
	Metadata Page        `json:"metadata"`
}
