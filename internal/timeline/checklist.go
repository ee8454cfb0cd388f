package timeline

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ChecklistItem is one todo of an embedded checklist payload.
type ChecklistItem struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// ExtractChecklist strips embedded checklist payloads (fenced or bare JSON
// objects carrying a "todos" array) from text. When several payloads are
// present the last one wins, matching how the agent re-emits the full list
// on every update. ok is false when text carries no payload.
func ExtractChecklist(text string) (rest string, items []ChecklistItem, ok bool) {
	if !strings.Contains(text, "todos") {
		return text, nil, false
	}

	var payload string
	rest = fencedBlock.ReplaceAllStringFunc(text, func(block string) string {
		body := fencedBlock.FindStringSubmatch(block)[1]
		if !isChecklist(body) {
			return block
		}
		payload = body
		return ""
	})

	for {
		start, end := findBareChecklist(rest)
		if start < 0 {
			break
		}
		payload = rest[start:end]
		rest = rest[:start] + rest[end:]
	}

	if payload == "" {
		return text, nil, false
	}
	rest = blankRuns.ReplaceAllString(strings.TrimSpace(rest), "\n\n")
	return rest, parseItems(payload), true
}

func isChecklist(body string) bool {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") || !gjson.Valid(body) {
		return false
	}
	return gjson.Get(body, "todos").IsArray()
}

func parseItems(payload string) []ChecklistItem {
	var items []ChecklistItem
	gjson.Get(payload, "todos").ForEach(func(_, v gjson.Result) bool {
		item := ChecklistItem{
			ID:      v.Get("id").String(),
			Content: v.Get("content").String(),
			Status:  v.Get("status").String(),
		}
		if item.Content == "" {
			item.Content = v.Get("title").String()
		}
		if item.Status == "" {
			item.Status = "pending"
		}
		items = append(items, item)
		return true
	})
	return items
}

// findBareChecklist locates the first unfenced JSON object with a todos array.
func findBareChecklist(s string) (int, int) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			continue
		}
		if isChecklist(s[i:end]) {
			return i, end
		}
	}
	return -1, -1
}

// matchBrace returns the index just past the brace closing s[start], honoring
// JSON string escapes, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
