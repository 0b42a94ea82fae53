// Package validation holds the default field and business rules applied to
// an affiliate application before a session is staged.
package validation

import (
	"context"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	"onboard/internal/affiliate/models"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/email"
)

const (
	minOrganizationName = 2
	maxOrganizationName = 200
	maxContactName      = 128
	maxDescription      = 2000
	minPhoneDigits      = 6
	maxPhone            = 32
)

// DefaultBlockedDomains are throwaway mail providers refused by default.
var DefaultBlockedDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"trashmail.com",
}

// Rules validates applications. Field-shape failures are validation errors;
// policy failures are business-rule violations.
type Rules struct {
	blockedDomains   map[string]struct{}
	allowedCountries map[string]struct{}
}

type Option func(*Rules)

// WithBlockedDomains replaces the default blocked list.
func WithBlockedDomains(domains []string) Option {
	return func(r *Rules) {
		r.blockedDomains = toSet(email.NormalizeList(domains))
	}
}

// WithAllowedCountries restricts registration to the given ISO 3166 alpha-2
// codes. An empty list allows any country.
func WithAllowedCountries(codes []string) Option {
	return func(r *Rules) {
		upper := make([]string, 0, len(codes))
		for _, c := range codes {
			upper = append(upper, strings.ToUpper(strings.TrimSpace(c)))
		}
		r.allowedCountries = toSet(upper)
	}
}

func New(opts ...Option) *Rules {
	r := &Rules{
		blockedDomains: toSet(DefaultBlockedDomains),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rules) Validate(_ context.Context, p models.Profile) error {
	if n := utf8.RuneCountInString(p.OrganizationName); n < minOrganizationName || n > maxOrganizationName {
		return dErrors.New(dErrors.CodeValidation, "organization_name must be between 2 and 200 characters")
	}
	if utf8.RuneCountInString(p.ContactName) > maxContactName {
		return dErrors.New(dErrors.CodeValidation, "contact_name must be 128 characters or less")
	}
	if !email.IsValid(p.ContactEmail) {
		return dErrors.New(dErrors.CodeValidation, "contact_email is not a valid address")
	}
	if p.Phone != "" && !validPhone(p.Phone) {
		return dErrors.New(dErrors.CodeValidation, "phone is not a valid number")
	}
	if p.Website != "" && !validWebsite(p.Website) {
		return dErrors.New(dErrors.CodeValidation, "website must be an http or https URL")
	}
	if p.Country != "" && !validCountryCode(p.Country) {
		return dErrors.New(dErrors.CodeValidation, "country must be a two-letter code")
	}
	if utf8.RuneCountInString(p.Description) > maxDescription {
		return dErrors.New(dErrors.CodeValidation, "description must be 2000 characters or less")
	}

	domain := p.ContactEmail[strings.LastIndexByte(p.ContactEmail, '@')+1:]
	if _, blocked := r.blockedDomains[strings.ToLower(domain)]; blocked {
		return dErrors.New(dErrors.CodeBusinessRule, "registrations from "+domain+" are not accepted")
	}
	if len(r.allowedCountries) > 0 {
		if p.Country == "" {
			return dErrors.New(dErrors.CodeBusinessRule, "country is required")
		}
		if _, ok := r.allowedCountries[p.Country]; !ok {
			return dErrors.New(dErrors.CodeBusinessRule, "registrations from "+p.Country+" are not accepted")
		}
	}
	return nil
}

func validPhone(phone string) bool {
	if len(phone) > maxPhone {
		return false
	}
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= minPhoneDigits
}

func validWebsite(raw string) bool {
	if !govalidator.StringLength(raw, "1", "2048") || !govalidator.IsURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
