package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern = regexp.MustCompile(`(\d+(?:[,\d]*\d)?(?:\.\d+)?)\s*([a-zA-Z]*)`)

	// South Asian listing sites quote prices in lakh/crore/arab units.
	priceMultipliers = map[string]float64{
		"":         1,
		"k":        1_000,
		"thousand": 1_000,
		"lac":      100_000,
		"lakh":     100_000,
		"lakhs":    100_000,
		"crore":    10_000_000,
		"crores":   10_000_000,
		"cr":       10_000_000,
		"arab":     1_000_000_000,
		"m":        1_000_000,
		"million":  1_000_000,
	}
)

// ParsePrice converts listing price text such as "Rs 1.5 Crore",
// "PKR 25,000" or "85 Lakh" into a plain amount.
func ParsePrice(s string) (float64, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	text = strings.TrimPrefix(text, "rs.")
	text = strings.TrimPrefix(text, "rs")
	text = strings.TrimPrefix(text, "pkr")

	matches := pricePattern.FindStringSubmatch(text)
	if len(matches) < 3 {
		return 0, fmt.Errorf("no amount in price %q", s)
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(matches[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount in price %q: %w", s, err)
	}

	multiplier, ok := priceMultipliers[matches[2]]
	if !ok {
		// Trailing currency codes or words ("pkr", "only") carry no scale.
		multiplier = 1
	}

	amount *= multiplier
	if amount <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}

	return amount, nil
}

// ParseInt pulls the first integer out of text like "3 Beds" or "2,400 sqft".
func ParseInt(s string) (int, bool) {
	m := intPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFloat pulls the first decimal number out of text like "5.5 Marla".
func ParseFloat(s string) (float64, bool) {
	m := floatPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var (
	intPattern   = regexp.MustCompile(`\d[\d,]*`)
	floatPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)
