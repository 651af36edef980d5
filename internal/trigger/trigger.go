// Package trigger implements the action (trigger) engine (C6): per-line
// pattern matching against a world's enabled actions, capture-group
// substitution, gag flagging, and manual invocation.
package trigger

import (
	"fmt"
	"regexp"
	"strings"

	"clay/internal/config"
	"clay/internal/worldutil"
)

// ansiCSI strips CSI sequences so matching runs against plain text
// (§4.6.1).
var ansiCSI = regexp.MustCompile("\x1b\\[[0-9;]*[\x40-\x7E]")

// StripANSI removes CSI sequences, returning the match target for a
// finalized line.
func StripANSI(text string) string {
	return ansiCSI.ReplaceAllString(text, "")
}

// CompiledAction pairs a config.Action with its compiled matcher.
type CompiledAction struct {
	config.Action
	re *regexp.Regexp
}

// Compile builds a CompiledAction from a config.Action, translating a
// Wildcard pattern into an unanchored, case-insensitive regexp per the
// substitution rules in §4.6: `*` -> `.*`, `?` -> `.`, `\*`/`\?` literal,
// all other regex metacharacters escaped. Regexp actions are compiled
// raw, also case-insensitive.
func Compile(a config.Action) (*CompiledAction, error) {
	var pattern string
	switch a.MatchType {
	case config.MatchRegexp:
		pattern = a.Pattern
	default:
		pattern = wildcardToRegexp(a.Pattern)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("trigger: compile action %q: %w", a.Name, err)
	}
	return &CompiledAction{Action: a, re: re}, nil
}

// wildcardToRegexp translates a wildcard pattern into an unanchored
// regexp with one capture group per `*`/`?`.
func wildcardToRegexp(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 < len(runes) && (runes[i+1] == '*' || runes[i+1] == '?') {
				b.WriteString(regexp.QuoteMeta(string(runes[i+1])))
				i++
				continue
			}
			b.WriteString(regexp.QuoteMeta(string(r)))
		case '*':
			b.WriteString("(.*)")
		case '?':
			b.WriteString("(.)")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// Match is one action firing against one line.
type Match struct {
	Action   config.Action
	Commands []string // already substituted, in order
	Gag      bool
}

// Dispatch evaluates every enabled, world-applicable compiled action
// against a finalized line and returns the matches, in definition order
// (§4.6: "all matching actions fire, in definition order").
func Dispatch(actions []*CompiledAction, worldName, line string) []Match {
	target := StripANSI(line)

	var matches []Match
	for _, a := range actions {
		if !a.Enabled {
			continue
		}
		if a.WorldFilter != "" && !worldutil.EqualFold(a.WorldFilter, worldName) {
			continue
		}
		loc := a.re.FindStringSubmatchIndex(target)
		if loc == nil {
			continue
		}
		groups := submatches(target, loc)
		matches = append(matches, buildMatch(a.Action, groups))
	}
	return matches
}

// ManualInvoke substitutes positional args into an action's commands
// identically to a pattern match, for `/<actionname> arg1 arg2` (§4.6).
func ManualInvoke(a config.Action, args []string) Match {
	groups := append([]string{strings.Join(args, " ")}, args...)
	return buildMatch(a, groups)
}

func buildMatch(a config.Action, groups []string) Match {
	gag := false
	var commands []string
	for _, raw := range splitCommands(a.Commands) {
		substituted := substitute(raw, groups)
		if strings.EqualFold(strings.TrimSpace(substituted), "/gag") {
			gag = true
			continue
		}
		commands = append(commands, substituted)
	}
	return Match{Action: a, Commands: commands, Gag: gag}
}

func splitCommands(commands string) []string {
	parts := strings.Split(commands, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// submatches turns a FindStringSubmatchIndex result into
// [full, group1, group2, ...].
func submatches(target string, loc []int) []string {
	n := len(loc) / 2
	out := make([]string, n)
	for i := 0; i < n; i++ {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 || end < 0 {
			out[i] = ""
			continue
		}
		out[i] = target[start:end]
	}
	return out
}

// substitute replaces $0-$9 and $* in cmd. $0 is the full match,
// $1..$9 are capture groups, $* is all groups joined with a space.
func substitute(cmd string, groups []string) string {
	var b strings.Builder
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c != '$' || i+1 >= len(cmd) {
			b.WriteByte(c)
			continue
		}
		next := cmd[i+1]
		switch {
		case next >= '0' && next <= '9':
			idx := int(next - '0')
			if idx < len(groups) {
				b.WriteString(groups[idx])
			}
			i++
		case next == '*':
			if len(groups) > 1 {
				b.WriteString(strings.Join(groups[1:], " "))
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
