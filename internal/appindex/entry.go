// Package appindex discovers installed applications and resolves spoken
// names to them.
//
// [Build] scans a list of [Dir] locations (plus optional [Lister] sources
// such as Windows Store apps) into an immutable [Snapshot]. An [Index] owns
// the current snapshot and replaces it wholesale on rebuild; readers never
// see a partially built index.
package appindex

import (
	"path/filepath"
	"strings"
)

// Kind is the type of an indexed application.
type Kind int

const (
	// KindDesktopEntry is a freedesktop.org .desktop file.
	KindDesktopEntry Kind = iota + 1

	// KindBundle is a macOS .app bundle.
	KindBundle

	// KindShortcut is a Windows .lnk shortcut.
	KindShortcut

	// KindExecutable is a Windows .exe file.
	KindExecutable

	// KindStoreApp is a Windows Store (UWP) application identified by its
	// AppID.
	KindStoreApp
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDesktopEntry:
		return "desktop"
	case KindBundle:
		return "bundle"
	case KindShortcut:
		return "shortcut"
	case KindExecutable:
		return "executable"
	case KindStoreApp:
		return "store"
	default:
		return "unknown"
	}
}

// Entry is one launchable application.
type Entry struct {
	// Name is the lower-case name the application is indexed under.
	Name string

	// DisplayName is the name as found on disk or in metadata.
	DisplayName string

	// Kind tells how the application is launched.
	Kind Kind

	// Path is the file the entry was read from. For KindStoreApp it holds
	// the AppID.
	Path string

	// Exec is the command line of a desktop entry with field codes removed.
	Exec []string
}

// Command returns the program and arguments that start the application.
func (e Entry) Command() (string, []string) {
	switch e.Kind {
	case KindDesktopEntry:
		if len(e.Exec) > 0 {
			return e.Exec[0], e.Exec[1:]
		}
		return "gtk-launch", []string{strings.TrimSuffix(filepath.Base(e.Path), ".desktop")}
	case KindBundle:
		return "open", []string{"-a", e.Path}
	case KindStoreApp:
		return "explorer.exe", []string{`shell:appsFolder\` + e.Path}
	default:
		// start treats its first quoted argument as the window title.
		return "cmd", []string{"/c", "start", "", e.Path}
	}
}

// normalize lower-cases and trims a name for use as an index key.
func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
