package logging

import (
	"fmt"
	"regexp"
	"strings"
)

var secretKeys = map[string]bool{
	"authorization":        true,
	"cookie":               true,
	"token":                true,
	"secret":               true,
	"password":             true,
	"xoxc":                 true,
	"xoxd":                 true,
	"web_token":            true,
	"cookie_token":         true,
	"x-slack-web-token":    true,
	"x-slack-cookie-token": true,
}

// slackTokenRe finds Slack credentials embedded in free text.
var slackTokenRe = regexp.MustCompile(`xox[a-z]-[A-Za-z0-9%\-]+`)

// RedactValue masks a secret, keeping only its last four characters.
func RedactValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		return "Bearer " + mask(trimmed[7:])
	}
	return mask(trimmed)
}

// RedactText masks any Slack token appearing inside s.
func RedactText(s string) string {
	return slackTokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		return tok[:5] + mask(tok[5:])
	})
}

// RedactAny walks maps and slices, masking values under secret-looking keys
// and tokens embedded in strings. Inputs are not modified.
func RedactAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			if isSecretKey(key) {
				out[key] = RedactValue(fmt.Sprint(val))
				continue
			}
			out[key] = RedactAny(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, val := range typed {
			if isSecretKey(key) {
				out[key] = RedactValue(val)
				continue
			}
			out[key] = RedactText(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = RedactAny(val)
		}
		return out
	case []string:
		out := make([]string, len(typed))
		for i, val := range typed {
			out[i] = RedactText(val)
		}
		return out
	case string:
		return RedactText(typed)
	default:
		return value
	}
}

func isSecretKey(key string) bool {
	return secretKeys[strings.ToLower(strings.TrimSpace(key))]
}

func mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
