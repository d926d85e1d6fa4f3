package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var digitGrouping = regexp.MustCompile(`(\d),(\d)`)

var smallNumbers = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fourty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var scales = map[string]int64{
	"thousand": 1_000,
	"million":  1_000_000,
}

// filler words that carry no value on a legal amount line
var filler = map[string]bool{
	"dollars": true, "dollar": true, "only": true, "and": true,
	"no": true, "cents": true, "cent": true, "xx": true, "exactly": true,
}

// ParseWrittenAmount reads the legal amount line of a check, for example
// "One hundred twenty-five and 00/100 dollars". The second return is false when
// the text cannot be read as an amount.
func ParseWrittenAmount(text string) (decimal.Decimal, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return decimal.Decimal{}, false
	}
	s = digitGrouping.ReplaceAllString(s, "$1$2")
	s = strings.NewReplacer("-", " ", ",", " ", "*", " ", "$", " ").Replace(s)

	var cents int64
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if frac, ok := parseFraction(w); ok {
			cents = frac
			continue
		}
		kept = append(kept, w)
	}

	var total, group int64
	seen := false
	for _, w := range kept {
		if n, ok := smallNumbers[w]; ok {
			group += n
			seen = true
			continue
		}
		if w == "hundred" {
			if group == 0 {
				group = 1
			}
			group *= 100
			seen = true
			continue
		}
		if scale, ok := scales[w]; ok {
			if group == 0 {
				group = 1
			}
			total += group * scale
			group = 0
			seen = true
			continue
		}
		if filler[w] {
			continue
		}
		if n, err := strconv.ParseInt(w, 10, 64); err == nil && n >= 0 {
			group += n
			seen = true
			continue
		}
		return decimal.Decimal{}, false
	}
	if !seen {
		return decimal.Decimal{}, false
	}
	total += group
	return decimal.New(total*100+cents, -2), true
}

// parseFraction reads the "NN/100" cents notation.
func parseFraction(w string) (int64, bool) {
	num, den, ok := strings.Cut(w, "/")
	if !ok || den != "100" {
		return 0, false
	}
	if num == "xx" || num == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 || n > 99 {
		return 0, false
	}
	return n, true
}
