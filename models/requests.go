package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexInt decodes from either a JSON number or a numeric string,
// so `"capacity": "10"` and `"capacity": 10` are the same value. Both forms
// must fit in 32 bits.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return fmt.Errorf("%q is not a 32-bit integer", s)
		}
		*n = FlexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("%s is not an integer", data)
	}
	*n = FlexInt(int(f))
	return nil
}

const dateOnly = "2006-01-02"

// ParseEventDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t.UTC(), nil
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Name       string `json:"name" binding:"required"`
	RollNumber string `json:"rollNumber"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body of PUT /profile.
type UpdateProfileRequest struct {
	Name       string `json:"name" binding:"required"`
	RollNumber string `json:"rollNumber"`
}

// UpdateRoleRequest is the body of PATCH /admin/users/:id/role.
type UpdateRoleRequest struct {
	Role Role `json:"role" binding:"required,oneof=USER ADMIN"`
}

// CreateEventRequest is the body of POST /events.
type CreateEventRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Venue       string  `json:"venue" binding:"required"`
	Date        string  `json:"date" binding:"required"`
	Time        string  `json:"time" binding:"required"`
	Capacity    FlexInt `json:"capacity" binding:"required,gt=0"`
	ImageURL    string  `json:"imageUrl" binding:"omitempty,url"`
	Category    string  `json:"category"`
	Organizer   string  `json:"organizer"`
}

// UpdateEventRequest is the body of PUT /events/:id. Absent fields are left unchanged.
type UpdateEventRequest struct {
	Title       *string  `json:"title" binding:"omitempty,min=1"`
	Description *string  `json:"description" binding:"omitempty,min=1"`
	Venue       *string  `json:"venue" binding:"omitempty,min=1"`
	Date        *string  `json:"date" binding:"omitempty,min=1"`
	Time        *string  `json:"time" binding:"omitempty,min=1"`
	Capacity    *FlexInt `json:"capacity" binding:"omitempty,gt=0"`
	ImageURL    *string  `json:"imageUrl"`
	Category    *string  `json:"category"`
	Organizer   *string  `json:"organizer"`
}

// ListEventsQuery is the query string of GET /events.
type ListEventsQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1,max=100000"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search string `form:"search"`
	Filter string `form:"filter" binding:"omitempty,oneof=upcoming past all"`
}

// EventInput is a validated event ready to be stored.
type EventInput struct {
	Title       string
	Description string
	Venue       string
	Date        time.Time
	Time        string
	Capacity    int
	ImageURL    *string
	Category    *string
	Organizer   *string
}

// EventPatch is a partial event update. Nil fields are left unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	Venue       *string
	Date        *time.Time
	Time        *string
	Capacity    *int
	ImageURL    *string
	Category    *string
	Organizer   *string
}

// EventQuery selects a page of events for a viewer.
type EventQuery struct {
	ViewerID string
	Page     int
	Limit    int
	Search   string
	Filter   string
	Now      time.Time
}

// NewUser is a validated signup.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	RollNumber   *string
}

// OptionalString returns nil for blank input so optional columns store NULL.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
