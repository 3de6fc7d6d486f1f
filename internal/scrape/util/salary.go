package util

import (
	"regexp"
	"strconv"
	"strings"
)

var salaryNumber = regexp.MustCompile(`(\d+(?:\.\d+)?)(K)?`)

// Salary is a parsed pay range in whole currency units.
type Salary struct {
	Min      *int
	Max      *int
	Currency string
}

// ParseSalary reads ranges like "$120K - $180K" or "150,000-200,000 USD".
// Bare numbers below 1000 are read as thousands. Currency defaults to USD.
func ParseSalary(text string) Salary {
	s := Salary{Currency: "USD"}
	if strings.TrimSpace(text) == "" {
		return s
	}

	t := strings.ToUpper(text)
	t = strings.NewReplacer(",", "", " ", "").Replace(t)

	switch {
	case strings.Contains(t, "£") || strings.Contains(t, "GBP"):
		s.Currency = "GBP"
	case strings.Contains(t, "€") || strings.Contains(t, "EUR"):
		s.Currency = "EUR"
	case strings.Contains(t, "CAD"):
		s.Currency = "CAD"
	}

	var values []int
	for _, m := range salaryNumber.FindAllStringSubmatch(t, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if m[2] == "K" || v < 1000 {
			v *= 1000
		}
		values = append(values, int(v))
	}
	if len(values) == 0 {
		return s
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	s.Min, s.Max = &lo, &hi
	return s
}
