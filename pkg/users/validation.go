package users

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/memtensor/userdesk/pkg/errors"
)

// Field types understood by ValidateFields
const (
	TypeText  = ""
	TypeEmail = "email"
	TypePhone = "phone"
	TypeURL   = "url"
)

// FieldRule describes the checks for one form field
type FieldRule struct {
	Required  bool
	Type      string
	MinLength int
	MaxLength int
}

// ProfileRules are the rules applied to the profile form
var ProfileRules = map[string]FieldRule{
	"name":    {Required: true, MinLength: 2, MaxLength: 100},
	"email":   {Required: true, Type: TypeEmail},
	"phone":   {Type: TypePhone},
	"website": {Type: TypeURL},
	"bio":     {MaxLength: MaxTextLength},
}

// updatable lists the fields UpdateUser may send
var updatable = map[string]bool{
	"name":      true,
	"email":     true,
	"bio":       true,
	"phone":     true,
	"website":   true,
	"interests": true,
}

var (
	validate = newValidator()

	phoneFormatting = regexp.MustCompile(`[\s\-().]`)
	localPhone      = regexp.MustCompile(`^\d{10}$`)
	intlPhone       = regexp.MustCompile(`^\+\d{8,15}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("safeurl", func(fl validator.FieldLevel) bool {
		return IsSafeURL(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// IsEmail reports whether s is a syntactically valid email address
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// IsPhone accepts ten digit local numbers and +-prefixed international
// numbers. Spaces, dashes, dots and parentheses are ignored.
func IsPhone(s string) bool {
	digits := phoneFormatting.ReplaceAllString(s, "")
	return localPhone.MatchString(digits) || intlPhone.MatchString(digits)
}

// IsSafeURL accepts absolute http and https URLs only
func IsSafeURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// ValidateFields checks form against rules and returns one message per
// failing field. Empty optional fields are skipped. Lengths count runes.
func ValidateFields(form map[string]string, rules map[string]FieldRule) map[string]string {
	problems := make(map[string]string)
	for field, rule := range rules {
		value := strings.TrimSpace(form[field])
		if value == "" {
			if rule.Required {
				problems[field] = fmt.Sprintf("%s is required", field)
			}
			continue
		}

		switch rule.Type {
		case TypeEmail:
			if !IsEmail(value) {
				problems[field] = "Invalid email format"
				continue
			}
		case TypePhone:
			if validate.Var(value, "phone") != nil {
				problems[field] = "Invalid phone number"
				continue
			}
		case TypeURL:
			if validate.Var(value, "safeurl") != nil {
				problems[field] = "Invalid URL format"
				continue
			}
		}

		n := utf8.RuneCountInString(value)
		if rule.MinLength > 0 && n < rule.MinLength {
			problems[field] = fmt.Sprintf("Must be at least %d characters", rule.MinLength)
		} else if rule.MaxLength > 0 && n > rule.MaxLength {
			problems[field] = fmt.Sprintf("Must be less than %d characters", rule.MaxLength)
		}
	}
	return problems
}

// ValidateUpdate checks a partial user update before it is sent. Only
// updatable fields are allowed and each must pass the profile rules.
func ValidateUpdate(changes map[string]interface{}) error {
	if len(changes) == 0 {
		return errors.NewValidationError("no changes to submit")
	}

	form := make(map[string]string, len(changes))
	rules := make(map[string]FieldRule, len(changes))
	var unknown []string
	for field, value := range changes {
		if !updatable[field] {
			unknown = append(unknown, field)
			continue
		}
		if field == "interests" {
			if _, ok := value.([]string); !ok {
				return errors.NewInvalidFormatError(field, "list of strings")
			}
			continue
		}
		s, ok := value.(string)
		if !ok {
			return errors.NewInvalidFormatError(field, "string")
		}
		form[field] = s
		rules[field] = ProfileRules[field]
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewInvalidInputError("fields cannot be updated: " + strings.Join(unknown, ", ")).
			WithDetail("fields", unknown)
	}

	if problems := ValidateFields(form, rules); len(problems) > 0 {
		return errors.NewValidationError("invalid user update").WithDetail("fields", problems)
	}
	return nil
}

// commonPasswords are rejected regardless of the policy
var commonPasswords = map[string]bool{
	"password":  true,
	"password1": true,
	"123456":    true,
	"12345678":  true,
	"123456789": true,
	"qwerty":    true,
	"qwerty123": true,
	"letmein":   true,
	"welcome":   true,
	"admin":     true,
	"abc123":    true,
	"iloveyou":  true,
	"111111":    true,
}

// PasswordPolicy is the client-side password check
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy returns the policy used when none is configured
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}
}

// Check returns a validation error listing every rule pw breaks
func (p PasswordPolicy) Check(pw string) error {
	var problems []string
	if utf8.RuneCountInString(pw) < p.MinLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		problems = append(problems, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		problems = append(problems, "must contain a symbol")
	}
	if commonPasswords[strings.ToLower(pw)] {
		problems = append(problems, "is too common")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.NewValidationError("password "+strings.Join(problems, "; ")).
		WithDetail("problems", problems)
}
