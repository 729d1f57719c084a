// Package email classifies address strings for contact-quality purposes:
// structural validity, role-based local parts, and automated senders.
package email

import (
	"regexp"
	"strings"
)

// Reason codes returned by Validate.
const (
	ReasonEmpty  = "empty"
	ReasonFormat = "format"
	ReasonBot    = "bot"
	ReasonOK     = "ok"
)

// Result is the structured outcome of classifying one address string.
// Validate never returns an error; malformed input yields a Result with
// Valid=false and a reason code.
type Result struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason"`
	RoleBased bool   `json:"role_based"`
	BotLike   bool   `json:"bot_like"`
}

// addressRe is the strict local-part@domain.tld grammar accepted for
// contact addresses. Deliberately narrower than RFC 5322.
var addressRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._%+\-]*@[a-z0-9][a-z0-9.\-]*\.[a-z]{2,}$`)

// rolePrefixes are local parts denoting an organizational function rather
// than an individual. Compared after stripping separators.
var rolePrefixes = map[string]bool{
	"admin":      true,
	"billing":    true,
	"contact":    true,
	"help":       true,
	"hr":         true,
	"info":       true,
	"marketing":  true,
	"office":     true,
	"sales":      true,
	"support":    true,
	"team":       true,
	"webmaster":  true,
	"enquiries":  true,
	"inquiries":  true,
	"hello":      true,
	"press":      true,
	"careers":    true,
	"jobs":       true,
	"accounts":   true,
	"compliance": true,
}

// botPrefixes are local parts associated with automated senders. These are
// never valid contact addresses.
var botPrefixes = map[string]bool{
	"noreply":        true,
	"donotreply":     true,
	"postmaster":     true,
	"mailerdaemon":   true,
	"bounce":         true,
	"bounces":        true,
	"notifications":  true,
	"notification":   true,
	"alerts":         true,
	"alert":          true,
	"automated":      true,
	"auto":           true,
	"daemon":         true,
	"robot":          true,
	"bot":            true,
	"system":         true,
	"notify":         true,
	"updates":        true,
	"newsletter":     true,
	"unsubscribe":    true,
	"mailer":         true,
	"autoresponder":  true,
	"outofoffice":    true,
	"calendarserver": true,
}

var separatorRe = regexp.MustCompile(`[._\-+]`)

// Validate classifies an address string. Bot-like addresses are always
// invalid, even when the local part is simultaneously role-based.
// Role-based addresses remain valid; RoleBased is reported so callers can
// apply their own data-quality policy.
func Validate(address string) Result {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return Result{Valid: false, Reason: ReasonEmpty}
	}

	local, _, found := strings.Cut(addr, "@")
	var roleBased, botLike bool
	if found && local != "" {
		stripped := separatorRe.ReplaceAllString(local, "")
		roleBased = rolePrefixes[stripped]
		botLike = botPrefixes[stripped]
	}

	if botLike {
		return Result{Valid: false, Reason: ReasonBot, RoleBased: roleBased, BotLike: true}
	}

	if !addressRe.MatchString(addr) {
		return Result{Valid: false, Reason: ReasonFormat, RoleBased: roleBased}
	}

	return Result{Valid: true, Reason: ReasonOK, RoleBased: roleBased}
}
