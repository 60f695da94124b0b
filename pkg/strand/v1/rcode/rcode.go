// Package rcode defines the result codes produced by processing modules and
// control-flow sections, and their classification rules.
package rcode

import "fmt"

// Code is the outcome of evaluating a module call or a section. The numeric
// values index per-node action tables and must stay stable.
type Code uint8

const (
	Reject Code = iota // immediately reject the request
	Fail               // module failed
	OK                 // module succeeded
	Handled            // module handled the request fully, reply is ready
	Invalid            // the request is invalid
	Disallow           // the request was disallowed by policy
	UserLock           // the user account is locked out
	NotFound           // the requested information was not found
	Noop               // module did nothing
	Updated            // module updated information in the request

	// NumCodes is the size of per-node action tables.
	NumCodes
)

// Yield is returned by a module method that has suspended itself pending an
// external event. It never appears in an action table and never propagates
// as a section result.
const Yield Code = 255

var names = [NumCodes]string{
	Reject:   "reject",
	Fail:     "fail",
	OK:       "ok",
	Handled:  "handled",
	Invalid:  "invalid",
	Disallow: "disallow",
	UserLock: "userlock",
	NotFound: "notfound",
	Noop:     "noop",
	Updated:  "updated",
}

func (c Code) String() string {
	if c == Yield {
		return "yield"
	}
	if c >= NumCodes {
		return fmt.Sprintf("rcode(%d)", uint8(c))
	}
	return names[c]
}

// IsGood reports whether a code counts as success for redundant sections:
// the first child returning ok, updated or noop terminates the section.
func (c Code) IsGood() bool {
	return c == OK || c == Updated || c == Noop
}

// Parse converts the textual form used in policy documents back to a Code.
func Parse(s string) (Code, error) {
	for c, name := range names {
		if s == name {
			return Code(c), nil
		}
	}
	return Fail, fmt.Errorf("unknown result code %q", s)
}
