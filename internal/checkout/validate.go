package checkout

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^\+?\d{7,15}$`)
	cardPattern   = regexp.MustCompile(`^\d{13,16}$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvcPattern    = regexp.MustCompile(`^\d{3,4}$`)

	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	cardSeparators  = strings.NewReplacer(" ", "", "-", "")
)

// NormalizeDetails trims every field and applies the default country.
func NormalizeDetails(d Details) Details {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Street = strings.TrimSpace(d.Street)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.TrimSpace(d.State)
	d.PostalCode = strings.TrimSpace(d.PostalCode)
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	if d.Country == "" {
		d.Country = DefaultCountry
	}
	return d
}

// ValidateDetails returns nil or a *ValidationError naming each bad field.
func ValidateDetails(d Details) error {
	fields := map[string]string{}

	required := []struct{ name, value, msg string }{
		{"full_name", d.FullName, "Full name is required"},
		{"street", d.Street, "Street address is required"},
		{"city", d.City, "City is required"},
		{"state", d.State, "State is required"},
		{"postal_code", d.PostalCode, "Postal code is required"},
	}
	for _, f := range required {
		if f.value == "" {
			fields[f.name] = f.msg
		}
	}

	switch {
	case d.Email == "":
		fields["email"] = "Email is required"
	case !emailPattern.MatchString(d.Email):
		fields["email"] = "Email is invalid"
	}

	switch phone := phoneSeparators.Replace(d.Phone); {
	case phone == "":
		fields["phone"] = "Phone is required"
	case !phonePattern.MatchString(phone):
		fields["phone"] = "Phone is invalid"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateCard checks shape only. No payment network is consulted.
func ValidateCard(c Card) error {
	fields := map[string]string{}

	if !cardPattern.MatchString(cardSeparators.Replace(strings.TrimSpace(c.Number))) {
		fields["number"] = "Card number must be 13 to 16 digits"
	}
	if !expiryPattern.MatchString(strings.TrimSpace(c.Expiry)) {
		fields["expiry"] = "Expiry must be MM/YY"
	}
	if !cvcPattern.MatchString(strings.TrimSpace(c.CVC)) {
		fields["cvc"] = "CVC must be 3 or 4 digits"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func last4(number string) string {
	n := cardSeparators.Replace(strings.TrimSpace(number))
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}
