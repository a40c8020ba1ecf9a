package store

import "strings"

// likeMatch reports whether s matches the SQL LIKE pattern, ignoring case.
// '%' matches any run of characters and '_' exactly one.
func likeMatch(s, pattern string) bool {
	str := []rune(strings.ToLower(s))
	pat := []rune(strings.ToLower(pattern))

	// prev[j] is true when pat[:i] matches str[:j].
	prev := make([]bool, len(str)+1)
	prev[0] = true
	for i := 1; i <= len(pat); i++ {
		cur := make([]bool, len(str)+1)
		p := pat[i-1]
		if p == '%' {
			cur[0] = prev[0]
		}
		for j := 1; j <= len(str); j++ {
			switch p {
			case '%':
				cur[j] = prev[j] || cur[j-1]
			case '_':
				cur[j] = prev[j-1]
			default:
				cur[j] = prev[j-1] && str[j-1] == p
			}
		}
		prev = cur
	}
	return prev[len(str)]
}

func likeAny(s string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if likeMatch(s, p) {
			return true
		}
	}
	return false
}
