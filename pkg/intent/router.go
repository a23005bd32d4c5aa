package intent

import (
	"regexp"
	"strings"
)

// exitWords is the termination vocabulary. Matching is exact against the
// normalized utterance.
var exitWords = map[string]struct{}{
	"exit": {},
	"quit": {},
	"stop": {},
}

// SiteAliases lists the site names the router recognises without a dot.
var SiteAliases = []string{"youtube", "gmail", "google", "github", "notion", "spotify"}

// Folders lists the well-known user folders understood by the folder rule.
var Folders = []string{"downloads", "documents", "desktop"}

const openPrefix = "open "

var (
	siteRe   = regexp.MustCompile(`(?i)^(?:open|launch)\s+(` + strings.Join(SiteAliases, "|") + `|[a-z0-9.\-]+)$`)
	searchRe = regexp.MustCompile(`(?i)^(?:google|search|find)\s+(?:for\s+)?(.+)$`)
	timeRe   = regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+)?(?:the\s+)?time(?:\s+now)?\??$`)
	dateRe   = regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+)?(?:the\s+)?date(?:\s+today)?\??$`)
	noteRe   = regexp.MustCompile(`(?i)^(?:make|take|add|note)\s+(?:that\s*)?(.+)$`)

	// The " folder" suffix is optional, so a bare folder name matches too.
	// Such input is host-shaped and the site rule claims it first; the
	// executor turns OpenSite("downloads") back into the folder.
	folderRe = regexp.MustCompile(`(?i)^open\s+(` + strings.Join(Folders, "|") + `)\s*(?:folder)?$`)
)

// Rule is one guard+action pair. Match reports whether the rule applies to
// text and, if so, the resulting action.
type Rule struct {
	// Name identifies the rule in logs.
	Name string

	// Match is the guard. It must be pure.
	Match func(text string) (Action, bool)
}

// Option configures a [Router].
type Option func(*Router)

// WithStrictOpenPrefix makes the generic "open " rule shadow every later rule
// that also starts with "open": any "open X" becomes LaunchApp(X) and the site
// and folder rules are only reachable through "launch X". The default router
// lets site aliases, host names and folder phrases through to their own rules.
func WithStrictOpenPrefix(strict bool) Option {
	return func(r *Router) {
		r.strictOpen = strict
	}
}

// Router maps utterances to actions by evaluating its rules in order. A Router
// is immutable after construction and safe for concurrent use.
type Router struct {
	strictOpen bool
	rules      []Rule
}

// NewRouter builds the router with the fixed rule order:
//
//  1. exit vocabulary
//  2. "open " + anything (LaunchApp)
//  3. open/launch a site alias or host name
//  4. search
//  5. time query
//  6. date query
//  7. note
//  8. open a user folder
//
// Anything else is Unrecognized.
func NewRouter(opts ...Option) *Router {
	r := &Router{}
	for _, o := range opts {
		o(r)
	}
	r.rules = []Rule{
		{Name: "exit", Match: matchExit},
		{Name: "launch_app", Match: r.matchOpenPrefix},
		{Name: "open_site", Match: matchCapture(siteRe, OpenSite)},
		{Name: "search", Match: matchCapture(searchRe, Search)},
		{Name: "tell_time", Match: matchBare(timeRe, TellTime)},
		{Name: "tell_date", Match: matchBare(dateRe, TellDate)},
		{Name: "make_note", Match: matchCapture(noteRe, MakeNote)},
		{Name: "open_folder", Match: matchFolder},
	}
	return r
}

// Classify returns the action of the first rule that matches text. It never
// fails; unmatched input yields [Unrecognized]. text is expected to be
// normalized with [Normalize].
func (r *Router) Classify(text string) Action {
	act, _ := r.ClassifyRule(text)
	return act
}

// ClassifyRule is like [Router.Classify] but also returns the name of the
// matching rule, or "" when the fallback was used.
func (r *Router) ClassifyRule(text string) (Action, string) {
	for _, rule := range r.rules {
		if act, ok := rule.Match(text); ok {
			return act, rule.Name
		}
	}
	return Unrecognized(), ""
}

// Strict reports whether the router was built with [WithStrictOpenPrefix].
func (r *Router) Strict() bool {
	return r.strictOpen
}

// Rules returns the rule names in evaluation order.
func (r *Router) Rules() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

func matchExit(text string) (Action, bool) {
	if _, ok := exitWords[text]; ok {
		return Exit(), true
	}
	return Action{}, false
}

func (r *Router) matchOpenPrefix(text string) (Action, bool) {
	if !strings.HasPrefix(text, openPrefix) {
		return Action{}, false
	}
	name := strings.TrimSpace(text[len(openPrefix):])
	if name == "" {
		return Action{}, false
	}
	if !r.strictOpen && (siteRe.MatchString(text) || folderRe.MatchString(text)) {
		return Action{}, false
	}
	return LaunchApp(name), true
}

func matchCapture(re *regexp.Regexp, build func(string) Action) func(string) (Action, bool) {
	return func(text string) (Action, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return Action{}, false
		}
		return build(strings.TrimSpace(m[1])), true
	}
}

func matchBare(re *regexp.Regexp, build func() Action) func(string) (Action, bool) {
	return func(text string) (Action, bool) {
		if !re.MatchString(text) {
			return Action{}, false
		}
		return build(), true
	}
}

func matchFolder(text string) (Action, bool) {
	m := folderRe.FindStringSubmatch(text)
	if m == nil {
		return Action{}, false
	}
	return OpenFolder(strings.ToLower(m[1])), true
}
