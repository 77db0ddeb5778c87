package handler

import (
	"regexp"
	"strings"

	"plugbot/pkg/bot"
)

// Match is the outcome of a successful predicate. A nil *Match means the
// update did not match.
type Match struct {
	// Groups holds the full match at index 0 followed by positional captures.
	Groups []string

	// Named holds named captures ((?P<name>...)).
	Named map[string]string
}

// Group returns capture i, or "" when it does not exist.
func (m *Match) Group(i int) string {
	if m == nil || i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Matcher is the predicate half of a Handler.
type Matcher interface {
	Match(u *bot.Update) *Match
	String() string
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(u *bot.Update) *Match

// Match implements Matcher.
func (f MatcherFunc) Match(u *bot.Update) *Match {
	if f == nil {
		return nil
	}
	return f(u)
}

func (f MatcherFunc) String() string {
	return "func"
}

// RegexMatcher matches the update's MatchText against a regular expression.
type RegexMatcher struct {
	re *regexp.Regexp
}

// NewRegexMatcher compiles pattern. Unless caseSensitive is set the pattern
// is matched case-insensitively.
func NewRegexMatcher(pattern string, caseSensitive bool) (*RegexMatcher, error) {
	if !caseSensitive && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMatcher{re: re}, nil
}

// Match implements Matcher.
func (m *RegexMatcher) Match(u *bot.Update) *Match {
	groups := m.re.FindStringSubmatch(u.MatchText())
	if groups == nil {
		return nil
	}

	match := &Match{Groups: groups}
	for i, name := range m.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if match.Named == nil {
			match.Named = make(map[string]string)
		}
		match.Named[name] = groups[i]
	}
	return match
}

func (m *RegexMatcher) String() string {
	return m.re.String()
}

// CommandMatcher matches "/name", "/name@bot" and "/name@bot args".
// Group 1 of the resulting Match holds the raw argument string, the
// following groups the individual argument tokens.
type CommandMatcher struct {
	name     string
	username string
	parser   Parser
}

// NewCommandMatcher creates a matcher for command name. When username is
// non-empty, commands addressed to another bot ("/name@otherbot") are
// ignored.
func NewCommandMatcher(name, username string) *CommandMatcher {
	return &CommandMatcher{
		name:     strings.TrimPrefix(name, "/"),
		username: username,
		parser:   NewParser(),
	}
}

// Match implements Matcher.
func (m *CommandMatcher) Match(u *bot.Update) *Match {
	parsed := m.parser.Parse(u.MatchText())
	if !parsed.IsCommand || !strings.EqualFold(parsed.Command, m.name) {
		return nil
	}
	if parsed.Mention != "" && m.username != "" && !strings.EqualFold(parsed.Mention, m.username) {
		return nil
	}

	groups := make([]string, 0, len(parsed.Args)+2)
	groups = append(groups, strings.TrimSpace(parsed.Raw), parsed.ArgumentRaw)
	groups = append(groups, parsed.Args...)
	return &Match{Groups: groups}
}

func (m *CommandMatcher) String() string {
	return "/" + m.name
}

// ParseResult is a tokenized command line.
type ParseResult struct {
	IsCommand   bool
	Command     string   // command without prefix and mention
	Mention     string   // bot username after '@', if any
	Args        []string // whitespace separated arguments
	Raw         string   // original text
	ArgumentRaw string   // everything after the command token, trimmed
}

// Parser splits chat text into a command and its arguments.
type Parser struct {
	Prefix string
}

// NewParser returns a parser for the "/" prefix.
func NewParser() Parser {
	return Parser{Prefix: "/"}
}

// Parse tokenizes text. Text that does not start with the prefix is not a
// command.
func (p Parser) Parse(text string) ParseResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult{Raw: text}
	}

	prefix := p.Prefix
	if prefix == "" {
		prefix = "/"
	}

	fields := strings.Fields(trimmed)
	first := fields[0]
	if !strings.HasPrefix(first, prefix) || len(first) <= len(prefix) {
		return ParseResult{Raw: text}
	}

	command := strings.TrimPrefix(first, prefix)
	mention := ""
	if idx := strings.IndexRune(command, '@'); idx >= 0 {
		mention = command[idx+1:]
		command = command[:idx]
	}
	if command == "" {
		return ParseResult{Raw: text}
	}

	result := ParseResult{
		IsCommand: true,
		Command:   command,
		Mention:   mention,
		Raw:       text,
	}
	if len(fields) > 1 {
		result.Args = fields[1:]
		result.ArgumentRaw = strings.TrimSpace(strings.TrimPrefix(trimmed, first))
	}
	return result
}
