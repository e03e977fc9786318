package payment

import (
	"regexp"
	"strconv"
	"strings"
)

// Card is the payment instrument submitted at checkout
type Card struct {
	Number     string `json:"card_number" validate:"required,credit_card"`
	ExpiryDate string `json:"expiry_date" validate:"required,card_expiry"`
	CVV        string `json:"cvv" validate:"required,number,min=3,max=4"`
	NameOnCard string `json:"name_on_card" validate:"required"`
}

var expiryPattern = regexp.MustCompile(`^(\d{2})/(\d{2}|\d{4})$`)

// Normalized trims every field and strips spaces and dashes from the number
func (c Card) Normalized() Card {
	return Card{
		Number:     normalizeNumber(c.Number),
		ExpiryDate: strings.TrimSpace(c.ExpiryDate),
		CVV:        strings.TrimSpace(c.CVV),
		NameOnCard: strings.TrimSpace(c.NameOnCard),
	}
}

// ValidExpiry reports whether s is MM/YY or MM/YYYY with a month of 01-12
func ValidExpiry(s string) bool {
	m := expiryPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	return month >= 1 && month <= 12
}

// Last4 returns the last four digits for display and logging
func (c Card) Last4() string {
	n := normalizeNumber(c.Number)
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

func normalizeNumber(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}
