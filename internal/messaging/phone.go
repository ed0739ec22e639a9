package messaging

import "strings"

// channelPrefixes are the transport markers Twilio prepends to addresses.
var channelPrefixes = []string{"whatsapp:", "messenger:", "sms:"}

// NormalizeSender derives the stable sender identity from a channel address:
// the transport prefix is stripped and whitespace trimmed. The function is
// total and idempotent; an already-normalized identity passes through
// unchanged.
func NormalizeSender(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}
