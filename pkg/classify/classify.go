// Package classify maps raw test error messages to a fixed failure taxonomy.
package classify

import "regexp"

// Category is a failure taxonomy bucket.
type Category string

const (
	TimeoutError   Category = "TimeoutError"
	NetworkError   Category = "NetworkError"
	SelectorError  Category = "SelectorError"
	AssertionError Category = "AssertionError"
	UnknownError   Category = "UnknownError"
)

// Rule pairs a category with the pattern that selects it.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// rules is evaluated top to bottom and the first match wins. The order is
// part of the contract: "TimeoutError: waiting for selector" must stay a
// TimeoutError.
var rules = []Rule{
	{
		Category: TimeoutError,
		Pattern:  regexp.MustCompile(`(?i)time(d)?[ -]?out|deadline exceeded`),
	},
	{
		Category: NetworkError,
		Pattern: regexp.MustCompile(
			`(?i)net::err_|econnrefused|econnreset|enotfound|eai_again|socket hang up|` +
				`network|request failed|fetch failed|status code 5\d\d`,
		),
	},
	{
		Category: SelectorError,
		Pattern: regexp.MustCompile(
			`(?i)selector|locator|element|no node found|not visible|not attached|detached from (the )?dom`,
		),
	},
	{
		Category: AssertionError,
		Pattern:  regexp.MustCompile(`(?i)assert|expect(ed)?\b|expect\(|to(be|equal|have|contain|match)`),
	},
}

// Classify returns the category of the first rule matching message.
func Classify(message string) Category {
	for _, r := range rules {
		if r.Pattern.MatchString(message) {
			return r.Category
		}
	}

	return UnknownError
}

// Rules returns the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)

	return out
}
