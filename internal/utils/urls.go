package utils

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/xurls/v2"
)

const (
	// MaxURLMatches caps how many link matches are scanned in one message
	MaxURLMatches = 50
)

var (
	// wrappedLinkRegex matches chat-wrapped references: <https://x|label>, <https://x>, <@U1>, <#C1|name>
	wrappedLinkRegex = regexp.MustCompile(`<([^|>\s]+)(?:\|[^>]*)?>`)

	// bareURLRegex only matches URLs that carry a scheme
	bareURLRegex = xurls.Strict()
)

type urlMatch struct {
	start int
	url   string
}

// ExtractURLs returns the unique http(s) links in text in first-seen order.
// Matches beyond MaxURLMatches are not collected.
func ExtractURLs(text string) []string {
	urls := []string{}
	if text == "" {
		return urls
	}

	var matches []urlMatch

	// Wrapped references are blanked out so the bare pass never sees their labels
	masked := []byte(text)
	for _, loc := range wrappedLinkRegex.FindAllStringSubmatchIndex(text, MaxURLMatches) {
		for i := loc[0]; i < loc[1]; i++ {
			masked[i] = ' '
		}
		if target := text[loc[2]:loc[3]]; isWebURL(target) {
			matches = append(matches, urlMatch{start: loc[0], url: target})
		}
	}

	for _, loc := range bareURLRegex.FindAllIndex(masked, MaxURLMatches) {
		if u := trimTrailingPunctuation(string(masked[loc[0]:loc[1]])); isWebURL(u) {
			matches = append(matches, urlMatch{start: loc[0], url: u})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	if len(matches) > MaxURLMatches {
		matches = matches[:MaxURLMatches]
	}

	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m.url] {
			continue
		}
		seen[m.url] = true
		urls = append(urls, m.url)
	}
	return urls
}

func isWebURL(u string) bool {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok || rest == "" {
		return false
	}
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

// trimTrailingPunctuation drops sentence punctuation glued to the end of a bare URL
func trimTrailingPunctuation(u string) string {
	u = strings.TrimRight(u, ".,;:!?'\"")
	// Keep a closing paren only when the URL also opened one (wiki style links)
	for strings.HasSuffix(u, ")") && strings.Count(u, "(") < strings.Count(u, ")") {
		u = strings.TrimSuffix(u, ")")
	}
	return u
}
