package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

func testPersonalizer(now time.Time) *Personalizer {
	p := NewPersonalizer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return now }
	return p
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func testRecipient() *domain.Recipient {
	dob := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	return &domain.Recipient{
		ID:          uuid.New(),
		FirstName:   "Maria",
		LastName:    "Santos",
		Phone:       strPtr("+15550001111"),
		Email:       strPtr("maria@example.com"),
		DateOfBirth: &dob,
	}
}

func testOrg(locale string) *domain.Organization {
	return &domain.Organization{
		ID:      uuid.New(),
		Name:    "Riverside Clinic",
		Phone:   "+15559990000",
		Email:   "contact@riverside.example",
		Address: "1 Health Way",
		Locale:  locale,
	}
}

func TestPersonalizer_Personalize(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	p := testPersonalizer(now)

	t.Run("SubstitutesAllVariables", func(t *testing.T) {
		content := "Hi {{first_name}} {{last_name}}, {{organization_name}} reminds you. Year: {{current_year}}."
		out, warnings := p.Personalize(content, testRecipient(), testOrg("en-US"))
		assert.Empty(t, warnings)
		assert.Equal(t, "Hi Maria Santos, Riverside Clinic reminds you. Year: 2026.", out)
	})

	t.Run("RepeatedTokenReplacedEverywhere", func(t *testing.T) {
		out, warnings := p.Personalize("{{first_name}} and {{first_name}}", testRecipient(), testOrg("en-US"))
		assert.Empty(t, warnings)
		assert.Equal(t, "Maria and Maria", out)
	})

	t.Run("MissingValueEmptiesTokenAndWarns", func(t *testing.T) {
		rec := testRecipient()
		rec.Phone = nil
		out, warnings := p.Personalize("Call us back at {{phone}}, {{first_name}}", rec, testOrg("en-US"))
		assert.Equal(t, "Call us back at , Maria", out)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "phone")
	})

	t.Run("OneFailureDoesNotAbortOtherSubstitutions", func(t *testing.T) {
		rec := testRecipient()
		rec.LastVisitAt = nil
		rec.NextAppointmentAt = timePtr(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
		out, warnings := p.Personalize("Last: {{last_visit_date}} Next: {{next_appointment_date}}", rec, testOrg("en-US"))
		assert.Equal(t, "Last:  Next: August 1, 2026", out)
		assert.Len(t, warnings, 1)
	})

	t.Run("UnknownTokensLeftUntouched", func(t *testing.T) {
		out, warnings := p.Personalize("Hello {{nickname}}", testRecipient(), testOrg("en-US"))
		assert.Empty(t, warnings)
		assert.Equal(t, "Hello {{nickname}}", out)
	})

	t.Run("NoTokensPassesThrough", func(t *testing.T) {
		out, warnings := p.Personalize("Plain text message", testRecipient(), testOrg("en-US"))
		assert.Empty(t, warnings)
		assert.Equal(t, "Plain text message", out)
	})
}

func TestPersonalizer_LocaleDateRendering(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	p := testPersonalizer(now)

	cases := []struct {
		locale string
		want   string
	}{
		{"en-US", "March 14, 1985"},
		{"en-GB", "14 March 1985"},
		{"de-DE", "14.03.1985"},
		{"fr-FR", "14/03/1985"},
		{"nl-NL", "14-03-1985"},
		{"xx-XX", "1985-03-14"}, // unknown locale falls back to ISO
	}
	for _, tc := range cases {
		t.Run(tc.locale, func(t *testing.T) {
			out, warnings := p.Personalize("{{date_of_birth}}", testRecipient(), testOrg(tc.locale))
			assert.Empty(t, warnings)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestPersonalizer_CurrentDateUsesOrgLocale(t *testing.T) {
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	p := testPersonalizer(now)

	out, warnings := p.Personalize("{{current_date}}", testRecipient(), testOrg("de-DE"))
	assert.Empty(t, warnings)
	assert.Equal(t, "15.07.2026", out)
}

func TestAllVariables_CoveredByResolvers(t *testing.T) {
	for _, v := range AllVariables() {
		_, ok := resolvers[v]
		assert.True(t, ok, "variable %s has no resolver", v)
	}
	assert.Len(t, resolvers, len(AllVariables()))
}
