package codec

import (
	"fmt"
	"regexp"
	"strings"
)

// At-mention wire format used by the platform: [LQ:@<account id>].
const atAllToken = "[LQ:@all]"

var atPattern = regexp.MustCompile(`\[LQ:@(\d+)\]`)

// FormatMention renders an at-mention token for the given account.
func FormatMention(accountID string) string {
	return fmt.Sprintf("[LQ:@%s]", accountID)
}

// FormatMentionAll renders the at-everyone token.
func FormatMentionAll() string {
	return atAllToken
}

// ExtractMentions returns the account IDs mentioned in text, in order.
func ExtractMentions(text string) []string {
	matches := atPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// StripMentions removes all mention tokens, collapsing leftover spaces.
func StripMentions(text string) string {
	out := atPattern.ReplaceAllString(text, "")
	out = strings.ReplaceAll(out, atAllToken, "")
	return strings.Join(strings.Fields(out), " ")
}
