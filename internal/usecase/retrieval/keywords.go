package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/futig/risk-report-backend/internal/pkg/chunker"
	"github.com/futig/risk-report-backend/internal/pkg/textnorm"
)

const (
	maxKeywords      = 32
	maxQueryVariants = 6
	minSentenceRunes = 6
	bigramThreshold  = 4
)

var englishStopwords = map[string]struct{}{
	"an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "which": {},
	"with": {}, "will": {}, "shall": {}, "should": {}, "not": {}, "all": {}, "any": {},
}

var chineseStopwords = map[string]struct{}{
	"进行": {}, "以及": {}, "通过": {}, "相关": {}, "根据": {}, "按照": {}, "其中": {}, "我们": {},
	"需要": {}, "可以": {}, "应当": {}, "如果": {}, "由于": {}, "对于": {}, "关于": {}, "其他": {},
	"一个": {}, "这些": {}, "那些": {}, "以下": {}, "以上": {},
}

// chineseFunctionChars end a Han run; they glue phrases together without carrying meaning.
var chineseFunctionChars = map[rune]struct{}{
	'的': {}, '了': {}, '和': {}, '与': {}, '及': {}, '或': {}, '在': {}, '是': {}, '对': {},
	'等': {}, '并': {}, '将': {}, '为': {}, '从': {}, '由': {}, '于': {},
}

// runs splits lower-cased text into latin alphanumeric runs and Han runs.
func runs(text string) (latin, han []string) {
	var cur []rune
	curHan := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		if curHan {
			han = append(han, string(cur))
		} else {
			latin = append(latin, string(cur))
		}
		cur = cur[:0]
	}

	for _, r := range strings.ToLower(text) {
		isHan := unicode.Is(unicode.Han, r)
		_, function := chineseFunctionChars[r]

		switch {
		case isHan && !function:
			if !curHan {
				flush()
			}
			curHan = true
			cur = append(cur, r)
		case !isHan && r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if curHan {
				flush()
			}
			curHan = false
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()

	return latin, han
}

// Keywords extracts de-duplicated lower-case search tokens: latin runs and Han runs of at least
// two characters, with character bigrams for long Han runs. Stopwords are dropped.
func Keywords(text string) []string {
	latin, han := runs(text)

	seen := make(map[string]struct{})
	var out []string
	add := func(token string) {
		if len(out) >= maxKeywords || utf8.RuneCountInString(token) < 2 {
			return
		}
		if _, stop := englishStopwords[token]; stop {
			return
		}
		if _, stop := chineseStopwords[token]; stop {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	for _, token := range latin {
		add(token)
	}

	for _, run := range han {
		add(run)
		r := []rune(run)
		if len(r) <= bigramThreshold {
			continue
		}
		for i := 0; i+1 < len(r); i++ {
			add(string(r[i : i+2]))
		}
	}

	return out
}

// QueryVariants derives up to six embedding queries: the whole query, each sentence of at least
// six characters, the Han-only text and the latin-only text.
func QueryVariants(query string) []string {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || len(out) >= maxQueryVariants {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(query)

	sentences := chunker.Sentences(query)
	if len(sentences) > 1 {
		for _, s := range sentences {
			if utf8.RuneCountInString(s) >= minSentenceRunes {
				add(s)
			}
		}
	}

	var hanOnly []string
	var latinOnly []string
	for _, word := range strings.Fields(query) {
		var han, latin strings.Builder
		for _, r := range word {
			switch {
			case textnorm.IsCJK(r):
				han.WriteRune(r)
			case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
				latin.WriteRune(r)
			}
		}
		if han.Len() > 0 {
			hanOnly = append(hanOnly, han.String())
		}
		if latin.Len() > 0 {
			latinOnly = append(latinOnly, latin.String())
		}
	}

	if h := strings.Join(hanOnly, " "); utf8.RuneCountInString(h) >= 2 {
		add(h)
	}
	if l := strings.Join(latinOnly, " "); len(l) >= 2 {
		add(l)
	}

	return out
}
