package models

import (
	"strings"

	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/email"
)

// Application is the registration form exactly as the applicant submitted it,
// after whitespace normalization. It is held in the session until the durable
// affiliate record exists. Attributes carries any extra form fields verbatim;
// nothing in it ever reaches the durable record's system-managed fields.
type Application struct {
	OrganizationName string            `json:"organization_name"`
	ContactName      string            `json:"contact_name"`
	ContactEmail     string            `json:"contact_email"`
	Phone            string            `json:"phone,omitempty"`
	Website          string            `json:"website,omitempty"`
	Country          string            `json:"country,omitempty"`
	Description      string            `json:"description,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

// Normalize trims free text and canonicalizes the contact address.
func (a *Application) Normalize() {
	a.OrganizationName = strings.TrimSpace(a.OrganizationName)
	a.ContactName = strings.TrimSpace(a.ContactName)
	a.ContactEmail = email.Normalize(a.ContactEmail)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Website = strings.TrimSpace(a.Website)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Description = strings.TrimSpace(a.Description)
}

// Validate checks the structural minimum the workflow itself depends on.
// Business rules live behind the validator port.
func (a *Application) Validate() error {
	if a.OrganizationName == "" {
		return dErrors.New(dErrors.CodeValidation, "organization_name is required")
	}
	if a.ContactEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "contact_email is required")
	}
	if !email.IsValid(a.ContactEmail) {
		return dErrors.New(dErrors.CodeValidation, "contact_email is not a valid address")
	}
	return nil
}

// GreetingName is the name used in applicant-facing notifications.
func (a *Application) GreetingName() string {
	if a.ContactName != "" {
		return a.ContactName
	}
	first, _ := email.DeriveNameFromEmail(a.ContactEmail)
	return first
}
