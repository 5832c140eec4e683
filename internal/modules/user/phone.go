// README: Canadian phone number validation and E.164 normalisation.
package user

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// nanp matches a 10 digit North American number: area code and exchange may not start with 0 or 1.
var nanp = regexp.MustCompile(`^([2-9]\d{2})([2-9]\d{2})(\d{4})$`)

var canadianAreaCodes = map[string]bool{
	"204": true, "226": true, "236": true, "249": true, "250": true, "257": true, "263": true, "289": true,
	"306": true, "343": true, "354": true, "365": true, "367": true, "368": true, "382": true, "387": true,
	"403": true, "416": true, "418": true, "428": true, "431": true, "437": true, "438": true, "450": true,
	"460": true, "468": true, "474": true, "506": true, "514": true, "519": true, "548": true, "579": true,
	"581": true, "584": true, "587": true, "604": true, "613": true, "639": true, "647": true, "672": true,
	"683": true, "705": true, "709": true, "742": true, "753": true, "778": true, "780": true, "782": true,
	"807": true, "819": true, "825": true, "867": true, "873": true, "879": true, "902": true, "905": true,
	"942": true,
}

// NormalizePhone accepts common spellings ("(416) 555-0199", "+1 416 555 0199")
// and returns +1XXXXXXXXXX for Canadian numbers.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '+':
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	m := nanp.FindStringSubmatch(digits)
	if m == nil || !canadianAreaCodes[m[1]] {
		return "", false
	}
	return "+1" + digits, true
}

// ValidateCanadianPhone is the "caphone" validator tag.
func ValidateCanadianPhone(fl validator.FieldLevel) bool {
	_, ok := NormalizePhone(fl.Field().String())
	return ok
}

// RegisterValidators installs the user package's custom tags.
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation("caphone", ValidateCanadianPhone)
}
