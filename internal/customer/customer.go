package customer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"kasirinaja/terminal/internal/domain"
)

var ErrInvalidCustomer = errors.New("invalid customer details")

// Violations maps a draft field to the rule it broke.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v[field])
	}
	return strings.Join(parts, ", ")
}

type draftRules struct {
	Name  string `validate:"omitempty,max=120"`
	Phone string `validate:"omitempty,min=5,max=20"`
	Email string `validate:"omitempty,email,max=254"`
}

type Validator struct {
	validate *validator.Validate
	region   string
}

// NewValidator checks drafts; region is the default phone region ("IN",
// "ID", ...) used when a number has no country prefix.
func NewValidator(region string) *Validator {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "IN"
	}
	return &Validator{validate: validator.New(), region: region}
}

// Normalize trims the draft and checks it. The phone keeps the digits the
// operator typed; separators are dropped so backend lookups by phone match.
// All fields are optional.
func (v *Validator) Normalize(draft domain.CustomerDraft) (domain.CustomerDraft, error) {
	out := domain.CustomerDraft{
		Name:  strings.TrimSpace(draft.Name),
		Phone: compactPhone(draft.Phone),
		Email: strings.ToLower(strings.TrimSpace(draft.Email)),
	}

	violations := Violations{}
	if err := v.validate.Struct(draftRules{Name: out.Name, Phone: out.Phone, Email: out.Email}); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return out, err
		}
		for _, fe := range fieldErrs {
			violations[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	if out.Phone != "" && violations["phone"] == "" {
		if err := ValidatePhoneNumber(out.Phone, v.region); err != nil {
			violations["phone"] = "phone"
		}
	}
	if !violations.Empty() {
		return out, fmt.Errorf("%w: %w", ErrInvalidCustomer, violations)
	}
	return out, nil
}

// ValidatePhoneNumber reports whether phone is a dialable number for region.
func ValidatePhoneNumber(phone string, region string) error {
	p, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// E164 formats phone for the hosted checkout prefill, falling back to the
// raw value when it cannot be parsed.
func E164(phone string, region string) string {
	p, err := libphonenumber.Parse(phone, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return phone
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

func compactPhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
