package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

// Variable is a named placeholder resolvable against a recipient and
// organization context. The set is fixed and enumerable.
type Variable string

const (
	VarFirstName           Variable = "first_name"
	VarLastName            Variable = "last_name"
	VarFullName            Variable = "full_name"
	VarPhone               Variable = "phone"
	VarEmail               Variable = "email"
	VarDateOfBirth         Variable = "date_of_birth"
	VarLastVisitDate       Variable = "last_visit_date"
	VarNextAppointmentDate Variable = "next_appointment_date"
	VarOrganizationName    Variable = "organization_name"
	VarOrganizationPhone   Variable = "organization_phone"
	VarOrganizationEmail   Variable = "organization_email"
	VarOrganizationAddress Variable = "organization_address"
	VarCurrentDate         Variable = "current_date"
	VarCurrentYear         Variable = "current_year"
)

// AllVariables returns the supported variables in documentation order.
func AllVariables() []Variable {
	return []Variable{
		VarFirstName, VarLastName, VarFullName, VarPhone, VarEmail,
		VarDateOfBirth, VarLastVisitDate, VarNextAppointmentDate,
		VarOrganizationName, VarOrganizationPhone, VarOrganizationEmail, VarOrganizationAddress,
		VarCurrentDate, VarCurrentYear,
	}
}

var errNoValue = errors.New("no value on record")

type resolveContext struct {
	recipient *domain.Recipient
	org       *domain.Organization
	now       time.Time
}

type resolverFunc func(rc resolveContext) (string, error)

// resolvers is the enum-keyed dispatch table. Each resolver is independent;
// one failing resolver never aborts the rest of the substitution pass.
var resolvers = map[Variable]resolverFunc{
	VarFirstName: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.recipient.FirstName)
	},
	VarLastName: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.recipient.LastName)
	},
	VarFullName: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.recipient.FullName())
	},
	VarPhone: func(rc resolveContext) (string, error) {
		return nonEmptyPtr(rc.recipient.Phone)
	},
	VarEmail: func(rc resolveContext) (string, error) {
		return nonEmptyPtr(rc.recipient.Email)
	},
	VarDateOfBirth: func(rc resolveContext) (string, error) {
		return localizedDatePtr(rc.recipient.DateOfBirth, rc.org.Locale)
	},
	VarLastVisitDate: func(rc resolveContext) (string, error) {
		return localizedDatePtr(rc.recipient.LastVisitAt, rc.org.Locale)
	},
	VarNextAppointmentDate: func(rc resolveContext) (string, error) {
		return localizedDatePtr(rc.recipient.NextAppointmentAt, rc.org.Locale)
	},
	VarOrganizationName: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.org.Name)
	},
	VarOrganizationPhone: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.org.Phone)
	},
	VarOrganizationEmail: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.org.Email)
	},
	VarOrganizationAddress: func(rc resolveContext) (string, error) {
		return nonEmpty(rc.org.Address)
	},
	VarCurrentDate: func(rc resolveContext) (string, error) {
		return formatLocalizedDate(rc.now, rc.org.Locale), nil
	},
	VarCurrentYear: func(rc resolveContext) (string, error) {
		return strconv.Itoa(rc.now.Year()), nil
	},
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", errNoValue
	}
	return s, nil
}

func nonEmptyPtr(s *string) (string, error) {
	if s == nil {
		return "", errNoValue
	}
	return nonEmpty(*s)
}

func localizedDatePtr(t *time.Time, locale string) (string, error) {
	if t == nil {
		return "", errNoValue
	}
	return formatLocalizedDate(*t, locale), nil
}

// dateLayouts maps organization locales to date layouts. Unknown locales fall
// back to ISO 8601.
var dateLayouts = map[string]string{
	"en-US": "January 2, 2006",
	"en-GB": "2 January 2006",
	"de-DE": "02.01.2006",
	"fr-FR": "02/01/2006",
	"es-ES": "02/01/2006",
	"nl-NL": "02-01-2006",
}

func formatLocalizedDate(t time.Time, locale string) string {
	if layout, ok := dateLayouts[locale]; ok {
		return t.Format(layout)
	}
	return t.Format("2006-01-02")
}

// Personalizer resolves template variables against a recipient and
// organization context.
type Personalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewPersonalizer creates a Personalizer.
func NewPersonalizer(logger *slog.Logger) *Personalizer {
	return &Personalizer{
		logger: logger.With("component", "personalizer"),
		now:    time.Now,
	}
}

// Personalize substitutes every supported {{variable}} occurrence in content.
// A variable whose resolver fails is replaced with an empty string and a
// warning is recorded; the rest of the content is still personalized.
func (p *Personalizer) Personalize(content string, recipient *domain.Recipient, org *domain.Organization) (string, []string) {
	rc := resolveContext{recipient: recipient, org: org, now: p.now().UTC()}
	result := content
	var warnings []string

	for _, v := range AllVariables() {
		token := "{{" + string(v) + "}}"
		if !strings.Contains(result, token) {
			continue
		}
		value, err := resolve(v, rc)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("variable %s: %v", v, err))
			value = ""
		}
		result = strings.ReplaceAll(result, token, value)
	}

	if len(warnings) > 0 {
		p.logger.Warn("Personalization completed with warnings", "recipient_id", recipient.ID, "warnings", warnings)
	}
	return result, warnings
}

// resolve runs a single resolver, containing panics so one bad variable never
// aborts the whole pass.
func resolve(v Variable, rc resolveContext) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = ""
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()
	fn, ok := resolvers[v]
	if !ok {
		return "", fmt.Errorf("unknown variable")
	}
	return fn(rc)
}
