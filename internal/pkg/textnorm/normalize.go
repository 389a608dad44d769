// Package textnorm cleans text extracted from PDF, Word and OCR output
// before it is chunked for retrieval.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	hyphenBreak = regexp.MustCompile(`([A-Za-z])- ?\n ?([a-z])`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)

	spaceBeforePunct = regexp.MustCompile(` +([,.;:!?%)\]])`)
	spaceAfterOpen   = regexp.MustCompile(`([(\[]) +`)

	pageMarkers = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,4}$`),
		regexp.MustCompile(`^[-–—] ?\d{1,4} ?[-–—]$`),
		regexp.MustCompile(`(?i)^page ?\d{1,4}( ?(of|/) ?\d{1,4})?$`),
		regexp.MustCompile(`^第 ?\d{1,4} ?页( ?[,/]? ?共 ?\d{1,4} ?页)?$`),
		regexp.MustCompile(`^共 ?\d{1,4} ?页[,/]? ?第 ?\d{1,4} ?页$`),
		regexp.MustCompile(`^\d{1,4} ?/ ?\d{1,4}$`),
	}
	banner = regexp.MustCompile(`(?i)^(©|\(c\)|copyright|confidential|机密|版权所有)`)
)

// bannerMaxLen bounds banner detection so body sentences starting with the same words survive.
const bannerMaxLen = 120

var bulletGlyphs = map[rune]bool{
	'•': true, '·': true, '●': true, '○': true, '◦': true, '▪': true, '■': true,
	'□': true, '◆': true, '◇': true, '►': true, '▶': true, '➢': true, '✓': true,
	'✔': true, '・': true, '‣': true, '⁃': true, '*': true,
}

// radicals maps CJK Radicals Supplement code points, which NFKC leaves alone,
// to the ideographs OCR engines meant.
var radicals = map[rune]rune{
	'⺅': '亻', '⺆': '冂', '⺊': '卜', '⺌': '小', '⺍': '小',
	'⺔': '彑', '⺖': '忄', '⺗': '心', '⺘': '扌', '⺙': '攵',
	'⺛': '旡', '⺝': '月', '⺞': '歺', '⺟': '母', '⺠': '民',
	'⺤': '爫', '⺦': '丬', '⺨': '犭', '⺫': '罒', '⺬': '示',
	'⺭': '礻', '⺮': '竹', '⺲': '罒', '⺷': '羊', '⺹': '耂',
	'⺼': '月', '⺾': '艹', '⺿': '艹', '⻀': '艹', '⻃': '覀',
	'⻄': '西', '⻅': '见', '⻆': '角', '⻈': '讠', '⻉': '贝',
	'⻋': '车', '⻌': '辶', '⻍': '辶', '⻏': '阝', '⻐': '钅',
	'⻑': '長', '⻒': '镸', '⻓': '长', '⻔': '门', '⻖': '阝',
	'⻗': '雨', '⻘': '青', '⻙': '韦', '⻚': '页', '⻛': '风',
	'⻜': '飞', '⻝': '食', '⻟': '飠', '⻠': '饣', '⻢': '马',
	'⻣': '骨', '⻤': '鬼', '⻥': '鱼', '⻦': '鸟', '⻧': '卤',
	'⻨': '麦', '⻩': '黄', '⻪': '黾', '⻫': '齐', '⻬': '齐',
	'⻭': '齿', '⻮': '齿', '⻯': '龙', '⻰': '龙', '⻱': '龟',
	'⻲': '龟', '⻳': '龟',
}

// Normalize returns the cleaned form of raw. It never fails and
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := foldCompat(raw)
	s = stripInvisible(s)
	s = hyphenBreak.ReplaceAllString(s, "$1$2")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if isPageMarker(line) {
			continue
		}

		line = normalizeBullet(line)
		line = fixCJKSpacing(line)
		line = fixLatinPunctuation(line)
		if isPageMarker(line) {
			continue
		}

		if n := len(out); n > 0 {
			prev := out[n-1]
			if line != "" && line == prev {
				continue
			}
			// page markers between the halves of a hyphenated word are gone by now
			if endsWithHyphenatedWord(prev) && startsLower(line) {
				out[n-1] = prev[:len(prev)-1] + line
				continue
			}
		}
		out = append(out, line)
	}

	s = strings.Join(out, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func foldCompat(s string) string {
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		if mapped, ok := radicals[r]; ok {
			return mapped
		}
		return r
	}, s)
}

func stripInvisible(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			pendingSpace = false
			b.WriteRune(r)
		case r == '\t' || r == '\f' || r == '\v' || unicode.Is(unicode.Zs, r):
			pendingSpace = true
		case r == '\u00AD' || r == '\u200B' || r == '\u2060' || r == '\uFEFF' || r == utf8.RuneError:
			// soft hyphens and zero-width marks are dropped without breaking the surrounding run
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPageMarker(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range pageMarkers {
		if re.MatchString(line) {
			return true
		}
	}
	return utf8.RuneCountInString(line) <= bannerMaxLen && banner.MatchString(line)
}

func normalizeBullet(line string) string {
	r, size := utf8.DecodeRuneInString(line)
	if !bulletGlyphs[r] {
		return line
	}
	rest := line[size:]
	if r == '*' && !strings.HasPrefix(rest, " ") {
		// emphasis or footnote marker, not a list item
		return line
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	return "- " + rest
}

func fixCJKSpacing(line string) string {
	prefix := ""
	if strings.HasPrefix(line, "- ") {
		prefix, line = "- ", line[2:]
	}
	if !strings.Contains(line, " ") {
		return prefix + line
	}

	runes := []rune(line)
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		if r == ' ' && len(out) > 0 && i+1 < len(runes) {
			prev, next := out[len(out)-1], runes[i+1]
			if dropSpaceBetween(prev, next) {
				continue
			}
		}
		out = append(out, r)
	}
	return prefix + string(out)
}

func dropSpaceBetween(prev, next rune) bool {
	if isCJKPunct(prev) || isCJKPunct(next) {
		return true
	}
	if isCJK(prev) {
		return isCJK(next) || isAlnum(next) || unicode.IsPunct(next)
	}
	if isCJK(next) {
		return isAlnum(prev) || unicode.IsPunct(prev)
	}
	return false
}

func fixLatinPunctuation(line string) string {
	line = spaceBeforePunct.ReplaceAllString(line, "$1")
	line = spaceAfterOpen.ReplaceAllString(line, "$1")

	runes := []rune(line)
	var b strings.Builder
	b.Grow(len(line) + 8)
	for i, r := range runes {
		b.WriteRune(r)
		if i == 0 || i+1 >= len(runes) {
			continue
		}
		prev, next := runes[i-1], runes[i+1]
		switch r {
		case ',', ';', '!', '?':
			if isASCIILetter(prev) && isASCIILetter(next) {
				b.WriteByte(' ')
			}
		case '.':
			// "end.Next" gets a space, "12.7", "v1.2" and "e.g" do not
			if prev >= 'a' && prev <= 'z' && next >= 'A' && next <= 'Z' {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func endsWithHyphenatedWord(line string) bool {
	n := len(line)
	return n >= 2 && line[n-1] == '-' && isASCIILetter(rune(line[n-2]))
}

func startsLower(line string) bool {
	return line != "" && line[0] >= 'a' && line[0] <= 'z'
}

// IsCJK reports whether r belongs to a Han-script family.
func IsCJK(r rune) bool {
	return isCJK(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Bopomofo, r)
}

func isCJKPunct(r rune) bool {
	return r >= 0x3000 && r <= 0x303F
}

func isAlnum(r rune) bool {
	return r < utf8.RuneSelf && (isASCIILetter(r) || (r >= '0' && r <= '9'))
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
