package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recipient is the contact record messages are addressed to. Consent flags are
// tri-state: nil means the recipient never expressed a preference and is
// treated as opted in.
type Recipient struct {
	ID                uuid.UUID  `json:"id"`
	OrgID             uuid.UUID  `json:"org_id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Phone             *string    `json:"phone,omitempty"`
	Email             *string    `json:"email,omitempty"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	LastVisitAt       *time.Time `json:"last_visit_at,omitempty"`
	NextAppointmentAt *time.Time `json:"next_appointment_at,omitempty"`
	SMSConsent        *bool      `json:"sms_consent,omitempty"`
	EmailConsent      *bool      `json:"email_consent,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// FullName returns the recipient's display name.
func (r *Recipient) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// AddressFor returns the channel-appropriate address, or "" if none is on record.
func (r *Recipient) AddressFor(ch Channel) string {
	switch ch {
	case ChannelSMS:
		if r.Phone != nil {
			return strings.TrimSpace(*r.Phone)
		}
	case ChannelEmail:
		if r.Email != nil {
			return strings.TrimSpace(*r.Email)
		}
	}
	return ""
}

// ConsentsTo reports whether the recipient may be contacted on the channel.
// Absence of the flag defaults to opt-in; only an explicit false opts out.
func (r *Recipient) ConsentsTo(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return r.SMSConsent == nil || *r.SMSConsent
	case ChannelEmail:
		return r.EmailConsent == nil || *r.EmailConsent
	}
	return false
}

// Organization carries the tenant context used for personalization.
type Organization struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	Email   string    `json:"email"`
	Address string    `json:"address"`
	Locale  string    `json:"locale"` // BCP 47 tag, e.g. "en-US"
}

// MessageTemplate is a reusable subject/content pair owned by an organization.
type MessageTemplate struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	Channel   Channel   `json:"channel"`
	Subject   *string   `json:"subject,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
