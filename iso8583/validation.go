package iso8583

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ValidationRule checks a single data element value.
type ValidationRule interface {
	Validate(value string) error
	Name() string // Returns the name of the rule (e.g., "length")
}

// Validator holds mandatory data elements and per-field rules. It is built
// once and is safe for concurrent use afterwards.
type Validator struct {
	mandatory  map[int]bool
	fieldRules map[int][]ValidationRule
}

// NewValidator creates a validator requiring the given data elements.
func NewValidator(mandatory ...int) *Validator {
	v := &Validator{
		mandatory:  make(map[int]bool, len(mandatory)),
		fieldRules: make(map[int][]ValidationRule),
	}
	for _, de := range mandatory {
		v.mandatory[de] = true
	}
	return v
}

// AddRule attaches a rule to a data element. Rules run only when the
// element is present.
func (v *Validator) AddRule(de int, rule ValidationRule) *Validator {
	v.fieldRules[de] = append(v.fieldRules[de], rule)
	return v
}

// Mandatory returns the required data elements in ascending order.
func (v *Validator) Mandatory() []int {
	out := make([]int, 0, len(v.mandatory))
	for de := range v.mandatory {
		out = append(out, de)
	}
	sort.Ints(out)
	return out
}

// Validate checks msg and returns every violation joined into one error.
func (v *Validator) Validate(msg *Message) error {
	var errs []error

	for _, de := range v.Mandatory() {
		if !msg.HasField(de) {
			errs = append(errs, &ValidationError{Field: de, Rule: "mandatory", Message: "mandatory field missing"})
		}
	}

	fields := make([]int, 0, len(v.fieldRules))
	for de := range v.fieldRules {
		fields = append(fields, de)
	}
	sort.Ints(fields)

	for _, de := range fields {
		value, ok := msg.Field(de)
		if !ok {
			continue
		}
		for _, rule := range v.fieldRules[de] {
			if err := rule.Validate(value); err != nil {
				errs = append(errs, &ValidationError{Field: de, Rule: rule.Name(), Message: err.Error()})
			}
		}
	}

	return errors.Join(errs...)
}

// LengthRule validates a value's length.
type LengthRule struct {
	MinLength   int
	MaxLength   int
	ExactLength int
}

func (r *LengthRule) Name() string {
	return "length"
}

func (r *LengthRule) Validate(value string) error {
	n := len(value)
	if r.ExactLength > 0 && n != r.ExactLength {
		return fmt.Errorf("length %d, want exactly %d", n, r.ExactLength)
	}
	if r.MinLength > 0 && n < r.MinLength {
		return fmt.Errorf("length %d below minimum %d", n, r.MinLength)
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		return fmt.Errorf("length %d exceeds maximum %d", n, r.MaxLength)
	}
	return nil
}

// NumericRule requires decimal digits only.
type NumericRule struct{}

func (r *NumericRule) Name() string {
	return "numeric"
}

func (r *NumericRule) Validate(value string) error {
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return fmt.Errorf("non-numeric character at position %d", i)
		}
	}
	return nil
}

// HexRule requires an even-length hex string, as carried by binary fields.
type HexRule struct{}

func (r *HexRule) Name() string {
	return "hex"
}

func (r *HexRule) Validate(value string) error {
	if len(value)%2 != 0 {
		return fmt.Errorf("odd hex length %d", len(value))
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F' || c >= 'a' && c <= 'f') {
			return fmt.Errorf("invalid hex character at position %d", i)
		}
	}
	return nil
}

// RegexRule validates a value against a pattern.
type RegexRule struct {
	Pattern *regexp.Regexp
}

func (r *RegexRule) Name() string {
	return "regex"
}

func (r *RegexRule) Validate(value string) error {
	if !r.Pattern.MatchString(value) {
		return fmt.Errorf("value does not match %s", r.Pattern)
	}
	return nil
}

// LuhnRule validates a card number check digit.
type LuhnRule struct{}

func (r *LuhnRule) Name() string {
	return "luhn"
}

func (r *LuhnRule) Validate(value string) error {
	if len(value) < 2 {
		return fmt.Errorf("card number too short")
	}
	sum := 0
	double := false
	for i := len(value) - 1; i >= 0; i-- {
		c := value[i]
		if c < '0' || c > '9' {
			return fmt.Errorf("non-numeric character at position %d", i)
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	if sum%10 != 0 {
		return fmt.Errorf("check digit mismatch")
	}
	return nil
}
