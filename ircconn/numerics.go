package ircconn

import "strings"

// Numeric reply/error codes are translated from their three-digit wire form
// into the lower-case symbolic names used throughout this module and by
// bridgedclient (e.g. "err_bannedfromchan", "err_nicknameinuse") -- the
// vocabulary the Bridged Client's error-code tables are written against.
var numericNames = map[string]string{
	"401": "err_nosuchnick",
	"403": "err_nosuchchannel",
	"404": "err_cannotsendtochan",
	"405": "err_toomanychannels",
	"421": "err_unknowncommand",
	"431": "err_nonicknamegiven",
	"432": "err_erroneusnickname",
	"433": "err_nicknameinuse",
	"436": "err_nickcollision",
	"437": "err_unavailresource",
	"438": "err_nickchangetoofast", // aliased below to err_nicktoofast for ircu/solanum variants
	"443": "err_useronchannel",
	"451": "err_notregistered",
	"461": "err_needmoreparams",
	"471": "err_channelisfull",
	"472": "err_unknownmode",
	"473": "err_inviteonlychan",
	"474": "err_bannedfromchan",
	"475": "err_badchannelkey",
	"477": "err_needreggednick",
	"485": "err_banonchan",
	"486": "err_nononreg",
	"513": "err_eventnickchange",
}

// err_nicktoofast is sent by some ircds (solanum, charybdis) as numeric 438
// with a "nick changes too fast" trailing rather than the "nick change
// temporarily disabled" text that maps to err_nickchangetoofast elsewhere,
// so code 438 resolves to err_nicktoofast when the trailing text mentions
// "too fast". The Bridged Client's ChangeNick rejects on err_nicktoofast;
// err_nickchangetoofast is not in its list of nick-change errors.
func numericName(code string, trailing string) string {
	if code == "438" && strings.Contains(strings.ToLower(trailing), "too fast") {
		return "err_nicktoofast"
	}
	if name, ok := numericNames[code]; ok {
		return name
	}
	return code
}

// isErrorCode reports whether a (possibly already-translated) event code
// represents an IRC error numeric: either a raw 4xx/5xx numeric that has no
// symbolic translation, or one of this package's "err_"-prefixed names.
func isErrorCode(code string) bool {
	if strings.HasPrefix(code, "err_") {
		return true
	}
	return len(code) == 3 && (code[0] == '4' || code[0] == '5')
}

// IsErrorCode is the exported form of isErrorCode, for packages (such as
// bridgedclient) that need to classify an Event's Code without
// reimplementing the err_-prefix/4xx-5xx rule.
func IsErrorCode(code string) bool { return isErrorCode(code) }
