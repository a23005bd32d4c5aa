// Package intent turns a normalized utterance into an [Action].
//
// Classification is performed by a [Router]: an ordered list of guard+action
// rules evaluated top to bottom where the first matching rule wins. The rule
// list is total; input that no rule recognises yields an [Action] of kind
// [KindUnrecognized], never an error.
//
// Typical usage:
//
//	r := intent.NewRouter()
//	act := r.Classify(intent.Normalize(raw))
//	switch act.Kind {
//	case intent.KindExit:
//	    ...
//	}
package intent

import "strings"

// Kind is the tag of an [Action].
type Kind int

const (
	// KindUnrecognized is returned when no rule matches.
	KindUnrecognized Kind = iota

	// KindExit ends the assistant session.
	KindExit

	// KindLaunchApp launches an installed application. Arg is the app name.
	KindLaunchApp

	// KindOpenSite opens a web site. Arg is a site alias or a host name.
	KindOpenSite

	// KindSearch runs a web search. Arg is the query.
	KindSearch

	// KindTellTime reports the current wall-clock time.
	KindTellTime

	// KindTellDate reports the current date.
	KindTellDate

	// KindMakeNote appends a note to the note file. Arg is the note text.
	KindMakeNote

	// KindOpenFolder opens a well-known user folder. Arg is the folder name.
	KindOpenFolder
)

// String returns the lower-case name of the kind. It is used as the "intent"
// attribute on metrics and log lines.
func (k Kind) String() string {
	switch k {
	case KindUnrecognized:
		return "unrecognized"
	case KindExit:
		return "exit"
	case KindLaunchApp:
		return "launch_app"
	case KindOpenSite:
		return "open_site"
	case KindSearch:
		return "search"
	case KindTellTime:
		return "tell_time"
	case KindTellDate:
		return "tell_date"
	case KindMakeNote:
		return "make_note"
	case KindOpenFolder:
		return "open_folder"
	default:
		return "unknown"
	}
}

// Action is the classified purpose of an utterance. Arg is empty for kinds
// that carry no argument. Action values are comparable and immutable.
type Action struct {
	Kind Kind
	Arg  string
}

// String renders the action as Kind(arg), or just Kind when it has no argument.
func (a Action) String() string {
	if a.Arg == "" {
		return a.Kind.String()
	}
	return a.Kind.String() + "(" + a.Arg + ")"
}

// Exit returns the termination action.
func Exit() Action { return Action{Kind: KindExit} }

// LaunchApp returns an action that launches the named application.
func LaunchApp(name string) Action { return Action{Kind: KindLaunchApp, Arg: name} }

// OpenSite returns an action that opens a site alias or host name.
func OpenSite(target string) Action { return Action{Kind: KindOpenSite, Arg: target} }

// Search returns a web search action.
func Search(query string) Action { return Action{Kind: KindSearch, Arg: query} }

// TellTime returns the time query action.
func TellTime() Action { return Action{Kind: KindTellTime} }

// TellDate returns the date query action.
func TellDate() Action { return Action{Kind: KindTellDate} }

// MakeNote returns an action that stores text as a note.
func MakeNote(text string) Action { return Action{Kind: KindMakeNote, Arg: text} }

// OpenFolder returns an action that opens the named user folder.
func OpenFolder(name string) Action { return Action{Kind: KindOpenFolder, Arg: name} }

// Unrecognized returns the fallback action.
func Unrecognized() Action { return Action{Kind: KindUnrecognized} }

// Normalize trims surrounding whitespace and lower-cases s. Utterances are
// normalized once, before classification.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
