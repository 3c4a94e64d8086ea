package normalize

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// Email lower-cases the domain part of an address. It returns "" for values
// that are not addresses.
func Email(value string) string {
	value = strings.Trim(strings.TrimSpace(value), "<>.,;:")
	at := strings.LastIndex(value, "@")
	if at <= 0 || at == len(value)-1 {
		return ""
	}
	local, domain := value[:at], strings.ToLower(value[at+1:])
	if strings.ContainsAny(local, " \t\n") || !strings.Contains(domain, ".") {
		return ""
	}
	return local + "@" + domain
}

// Phone formats a number as E.164. Numbers without an international prefix
// need a default region (ISO 3166 alpha-2); without one they are rejected.
func Phone(value, region string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "00") {
		value = "+" + strings.TrimPrefix(value, "00")
	}
	num, err := phonenumbers.Parse(value, strings.ToUpper(region))
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// PhoneCountry returns the region of an E.164 number, or "".
func PhoneCountry(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if region == "ZZ" {
		return ""
	}
	return region
}

var ibanShape = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)

// IBAN strips separators, upper-cases and verifies the mod-97 checksum.
// Invalid values return "".
func IBAN(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsSpace(r) || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	iban := b.String()
	if !ibanShape.MatchString(iban) {
		return ""
	}
	if !ibanChecksum(iban) {
		return ""
	}
	return iban
}

// IBANCountry returns the country prefix of a normalized IBAN.
func IBANCountry(iban string) string {
	if len(iban) < 2 {
		return ""
	}
	return iban[:2]
}

func ibanChecksum(iban string) bool {
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(strconv.Itoa(int(r-'A') + 10))
			continue
		}
		digits.WriteRune(r)
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
