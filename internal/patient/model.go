package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// User is the shared identity record for patients and doctors.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ChatID    *int64    `json:"chat_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FirstName returns the leading word of the user's name, for greetings.
func (u *User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// HasChannel reports whether the user has a bound chat channel.
func (u *User) HasChannel() bool {
	return u.ChatID != nil
}

// Patient carries the per-patient check-in preferences and the three rolled-up
// sentiment metrics. The metrics are owned by the checkin store's aggregation
// routine and are never written from this package.
type Patient struct {
	User
	Condition       string  `json:"condition"`
	Timezone        string  `json:"timezone"`
	CheckinTime     string  `json:"checkin_time"` // "HH:MM", empty if unset
	CumulativeScore float64 `json:"cumulative_score"`
	DayOverDayDelta float64 `json:"day_over_day_delta"`
	ThreeDayDelta   float64 `json:"three_day_delta"`
}

type Doctor struct {
	User
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
	Institution   string `json:"institution"`
}

// ParseCheckinTime parses a 24-hour "HH:MM" preference string.
func ParseCheckinTime(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}

// LooksLikeClock reports whether text is a bare "HH:MM" reply, which the
// webhook treats as a scheduling-preference update rather than conversation.
func LooksLikeClock(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) > 5 || !strings.Contains(text, ":") {
		return false
	}
	_, _, err := ParseCheckinTime(text)
	return err == nil
}
