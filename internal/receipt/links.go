package receipt

import (
	"regexp"
	"strings"
)

var portalLinkRe = regexp.MustCompile(`(?i)(?:https?://)?(?:sift-)?mev\.sfs\.md/receipt(?:-verifier)?/[^\s<>"']+`)

// ExtractPortalURL finds the first receipt portal link in free text.
func ExtractPortalURL(text string) (string, bool) {
	m := portalLinkRe.FindString(text)
	if m == "" {
		return "", false
	}
	return withScheme(strings.TrimRight(m, ".,;)")), true
}

// FindPortalLink picks a portal link among decoded QR payloads.
func FindPortalLink(values []string) (string, bool) {
	for _, v := range values {
		if link, ok := ExtractPortalURL(v); ok {
			return link, true
		}
	}
	return "", false
}

func withScheme(link string) string {
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return link
	}
	return "https://" + link
}
