package builder

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Glass types.
const (
	GlassTempered  = "tempered"
	GlassLaminated = "laminated"
	GlassInsulated = "insulated"
	GlassFloat     = "float"
	GlassFrosted   = "frosted"
	GlassTinted    = "tinted"
	GlassLowE      = "low_e"
)

// glassKeywords maps spoken vocabulary onto glass types. Longer phrases come
// first so "double glazed" is not read as something shorter.
var glassKeywords = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`\b(double|triple)[ -]glaz(ed|ing)\b|\binsulat(ed|ing)\b|\bigu\b`), GlassInsulated},
	{regexp.MustCompile(`\blow[ -]?e\b`), GlassLowE},
	{regexp.MustCompile(`\b(tempered|toughened|toughen)\b`), GlassTempered},
	{regexp.MustCompile(`\b(laminated|laminate)\b`), GlassLaminated},
	{regexp.MustCompile(`\b(float|clear|annealed|regular|standard)\b`), GlassFloat},
	{regexp.MustCompile(`\b(frosted|obscure|privacy)\b`), GlassFrosted},
	{regexp.MustCompile(`\b(tinted|bronze|grey|gray)\b`), GlassTinted},
}

// ExtractGlassType finds a glass type keyword.
//
// Grammar: any of the keywords above, case-insensitive, anywhere in text.
func ExtractGlassType(text string) (string, bool) {
	s := strings.ToLower(text)
	for _, k := range glassKeywords {
		if k.re.MatchString(s) {
			return k.kind, true
		}
	}
	return "", false
}

// number accepts "1,200" as a grouped integer and "1,2" or "1.2" as a
// decimal.
const number = `(\d{1,3}(?:,\d{3})+|\d+(?:[.,]\d+)?)`
const unit = `(?:\s*(mm|millimet(?:er|re)s?|cm|centimet(?:er|re)s?|met(?:er|re)s?|m)\b)?`

var (
	byRE   = regexp.MustCompile(`(?i)` + number + unit + `\s*(?:by|x|×|\*)\s*` + number + unit)
	andRE  = regexp.MustCompile(`(?i)` + number + `\s*(mm|cm|millimet(?:er|re)s?|centimet(?:er|re)s?)\s*(?:and|,)\s*` + number + unit)
	wideRE = regexp.MustCompile(`(?i)` + number + unit + `\s*wide\b.*?` + number + unit + `\s*(?:high|tall)\b`)

	// thirdRE matches a further "x N" after a pair.
	thirdRE   = regexp.MustCompile(`(?i)^\s*(?:by|x|×|\*)\s*` + number)
	groupedRE = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ExtractDimensions finds width and height in millimetres.
//
// Grammar: "W by H", "W x H", "W × H", "W mm and H mm", "W wide ... H high",
// each number optionally followed by mm, cm or m. A unit given only after H
// applies to both values. In "N x W by H" a leading count smaller than both
// sides is skipped.
func ExtractDimensions(text string) (width, height float64, ok bool) {
	w, h, _, _, ok := findDimensions(text)
	return w, h, ok
}

// findDimensions is ExtractDimensions plus the byte span of the pair.
func findDimensions(text string) (w, h float64, start, end int, ok bool) {
	for _, re := range []*regexp.Regexp{byRE, andRE, wideRE} {
		off := 0
		for off < len(text) {
			loc := re.FindStringSubmatchIndex(text[off:])
			if loc == nil {
				break
			}
			m := submatches(text[off:], loc)
			if re == byRE && leadingCount(m, text[off+loc[1]:]) {
				off += loc[6]
				continue
			}
			wUnit, hUnit := m[2], m[4]
			if wUnit == "" {
				wUnit = hUnit
			}
			w, wok := toMillimetres(m[1], wUnit)
			h, hok := toMillimetres(m[3], hUnit)
			if !wok || !hok || w <= 0 || h <= 0 {
				break
			}
			return w, h, off + loc[0], off + loc[1], true
		}
	}
	return 0, 0, 0, 0, false
}

// leadingCount reports whether the first number of a pair followed by rest
// is a piece count: a unitless integer smaller than both numbers after it.
func leadingCount(m []string, rest string) bool {
	third := thirdRE.FindStringSubmatch(rest)
	if third == nil || m[2] != "" {
		return false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	second, sok := toMillimetres(m[3], "")
	last, lok := toMillimetres(third[1], "")
	return sok && lok && float64(count) < second && float64(count) < last
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func toMillimetres(raw, u string) (float64, bool) {
	if groupedRE.MatchString(raw) {
		raw = strings.ReplaceAll(raw, ",", "")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	switch u = strings.ToLower(u); {
	case strings.HasPrefix(u, "cm"), strings.HasPrefix(u, "centi"):
		v *= 10
	case u == "m", strings.HasPrefix(u, "met"):
		v *= 1000
	}
	return v, true
}

var thicknessRE = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:mm)?\s*thick|thickness\s*(?:of|is)?\s*(\d+(?:\.\d+)?)`)

// ExtractThickness finds a thickness in millimetres ("6mm thick",
// "thickness 10").
func ExtractThickness(text string) (float64, bool) {
	m := thicknessRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

var (
	explicitQtyRE = regexp.MustCompile(`(?i)\b(\d+)\s*(?:x\s+)?(?:[a-z-]+\s+){0,2}?(?:pieces?|pcs|panes?|panels?|units?|sheets?|of them|lites?)\b|\b(?:quantity|qty)\s*(?:of|is|:)?\s*(\d+)\b`)
	bareIntRE     = regexp.MustCompile(`\b(\d+)\b`)
	countPrefixRE = regexp.MustCompile(`(?i)\b(\d+)\s*(?:x|×)\s*$`)

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
		"fifteen": 15, "twenty": 20, "thirty": 30, "fifty": 50, "hundred": 100,
		"a dozen": 12, "dozen": 12, "a couple": 2, "single": 1,
	}
	numberWordRE = regexp.MustCompile(`(?i)\b(a dozen|a couple|dozen|single|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty|thirty|fifty|hundred)\b`)
)

// ExtractQuantity finds an explicit quantity anywhere in text. Numbers of a
// dimension pair are never read as the quantity.
//
// Grammar: "N pieces|pcs|panes|panels|units|sheets", "N x W by H",
// "quantity N", "qty N".
func ExtractQuantity(text string) (int, bool) {
	if _, _, start, end, ok := findDimensions(text); ok {
		if m := countPrefixRE.FindStringSubmatch(text[:start]); m != nil {
			return positiveInt(m[1])
		}
		text = text[:start] + strings.Repeat(" ", end-start) + text[end:]
	}
	m := explicitQtyRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	return positiveInt(raw)
}

// ExtractBareQuantity is used while the builder is waiting for a quantity:
// an explicit quantity, otherwise the first integer, otherwise a number word.
// Dimension pairs are never read as quantities.
func ExtractBareQuantity(text string) (int, bool) {
	if n, ok := ExtractQuantity(text); ok {
		return n, true
	}
	if _, _, dims := ExtractDimensions(text); dims {
		return 0, false
	}
	if m := bareIntRE.FindStringSubmatch(text); m != nil {
		return positiveInt(m[1])
	}
	if m := numberWordRE.FindStringSubmatch(text); m != nil {
		return numberWords[strings.ToLower(m[1])], true
	}
	return 0, false
}

func positiveInt(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var (
	// strongCueRE introduces a name regardless of capitalization.
	strongCueRE = regexp.MustCompile(`(?i)\b(?:customer(?:'s)? name(?: is)?|customer is|customer:|(?:my |the |their )?name is|name's)\s+([A-Za-z][A-Za-z.'&-]*(?:\s+[A-Za-z][A-Za-z.'&-]*){0,3})`)
	looseCueRE  = regexp.MustCompile(`(?i)\b(?:for|under)\s+([A-Za-z][A-Za-z.'&-]*(?:\s+[A-Za-z][A-Za-z.'&-]*){0,3})`)
	// weakCueRE only introduces capitalized names: "for Acme", not "for tempered".
	weakCueRE = regexp.MustCompile(`\b(?:[Ff]or|[Uu]nder(?: the name)?)\s+([A-Z][A-Za-z.'&-]*(?:\s+[A-Za-z][A-Za-z.'&-]*){0,3})`)

	// nameStopWords are capitalized words that are never part of a name.
	nameStopWords = map[string]bool{
		"i": true, "i'm": true, "it": true, "it's": true, "the": true, "a": true, "an": true,
		"yes": true, "no": true, "ok": true, "okay": true, "please": true, "thanks": true,
		"hi": true, "hello": true, "hey": true, "my": true, "we": true, "our": true,
		"that": true, "this": true, "and": true, "me": true, "us": true, "is": true,
		"name": true, "customer": true, "order": true, "call": true,
		"today": true, "tomorrow": true, "tonight": true, "yesterday": true, "next": true,
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true,
		"saturday": true, "sunday": true,
		"january": true, "february": true, "march": true, "april": true, "june": true,
		"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	}
)

// ExtractCustomer finds a customer name introduced by a cue ("for Acme Ltd",
// "customer is Jane Doe", "name is Bob").
func ExtractCustomer(text string) (string, bool) {
	if m := strongCueRE.FindStringSubmatch(text); m != nil {
		if name := trimName(m[1]); name != "" {
			return name, true
		}
	}
	if m := weakCueRE.FindStringSubmatch(text); m != nil {
		if name := trimName(capitalizedPrefix(m[1])); name != "" {
			return name, true
		}
	}
	return "", false
}

// ExtractBareCustomer is used while the builder is waiting for a customer:
// a cue-introduced name in any case, otherwise the capitalized-name
// heuristic, otherwise a short all-letters answer taken as the name.
func ExtractBareCustomer(text string) (string, bool) {
	if name, ok := ExtractCustomer(text); ok {
		return name, true
	}
	if m := looseCueRE.FindStringSubmatch(text); m != nil {
		if name := trimName(m[1]); name != "" {
			return name, true
		}
	}
	if name := capitalizedRun(text); name != "" {
		return name, true
	}
	words := strings.Fields(strings.Trim(text, " .!?,"))
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}
	for _, wd := range words {
		if !isNameWord(wd) || nameStopWords[strings.ToLower(wd)] {
			return "", false
		}
	}
	return titleCase(words), true
}

// capitalizedRun returns the longest run of consecutive capitalized words
// that are not stop words.
func capitalizedRun(text string) string {
	var best, cur []string
	flush := func() {
		if len(cur) > len(best) {
			best = cur
		}
		cur = nil
	}
	for _, raw := range strings.Fields(text) {
		wd := strings.Trim(raw, ".,!?;:\"")
		if wd != "" && startsUpper(wd) && isNameWord(wd) && !nameStopWords[strings.ToLower(wd)] {
			cur = append(cur, wd)
			if strings.ContainsAny(raw, ",.!?;:") {
				flush()
			}
			continue
		}
		flush()
	}
	flush()
	return strings.Join(best, " ")
}

func trimName(raw string) string {
	words := strings.Fields(raw)
	var kept []string
	for _, wd := range words {
		wd = strings.Trim(wd, ".,!?;:")
		if wd == "" {
			break
		}
		lower := strings.ToLower(wd)
		if nameStopWords[lower] || lower == "please" || lower == "thanks" {
			break
		}
		kept = append(kept, wd)
	}
	return titleCase(kept)
}

func titleCase(words []string) string {
	out := make([]string, 0, len(words))
	for _, wd := range words {
		r := []rune(wd)
		r[0] = unicode.ToUpper(r[0])
		out = append(out, string(r))
	}
	return strings.Join(out, " ")
}

func isNameWord(wd string) bool {
	for _, r := range wd {
		if !unicode.IsLetter(r) && r != '.' && r != '\'' && r != '-' && r != '&' {
			return false
		}
	}
	return wd != ""
}

// capitalizedPrefix keeps the leading capitalized words of s.
func capitalizedPrefix(s string) string {
	var kept []string
	for _, wd := range strings.Fields(s) {
		if !startsUpper(wd) {
			break
		}
		kept = append(kept, wd)
	}
	return strings.Join(kept, " ")
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
