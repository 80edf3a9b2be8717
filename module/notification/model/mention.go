package model

import "regexp"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Mentions 文本里的 @handle，按首次出现顺序去重
func Mentions(text string) []string {
	found := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, m := range found {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
