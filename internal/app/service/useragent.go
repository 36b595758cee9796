package service

import "strings"

// User-agent classification is deliberately coarse: a fixed, ordered list of
// substring checks where the first match wins. The ordering matters — Chrome
// user agents also contain "Safari", so Chrome must be tested first — and it
// must stay stable so scan analytics remain comparable over time.

const classUnknown = "Unknown"

var osRules = []struct {
	needles []string
	label   string
}{
	{[]string{"linux"}, "Linux"},
	{[]string{"macintosh", "mac os x"}, "Mac"},
	{[]string{"windows", "win32"}, "Windows"},
}

var browserRules = []struct {
	needle string
	label  string
}{
	{"msie", "Internet Explorer"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
	{"opera", "Opera"},
}

// ClassifyOS maps a raw user-agent string to a coarse OS label.
func ClassifyOS(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, rule := range osRules {
		for _, needle := range rule.needles {
			if strings.Contains(ua, needle) {
				return rule.label
			}
		}
	}
	return classUnknown
}

// ClassifyBrowser maps a raw user-agent string to a coarse browser label.
func ClassifyBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, rule := range browserRules {
		if strings.Contains(ua, rule.needle) {
			return rule.label
		}
	}
	return classUnknown
}
