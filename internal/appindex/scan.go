package appindex

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Dir is a directory scanned for applications.
type Dir struct {
	Path string

	// MaxDepth limits how far below Path the scan descends. 0 means
	// unlimited; 1 means only the entries of Path itself.
	MaxDepth int
}

// Lister produces entries that do not live in a directory, such as Windows
// Store apps.
type Lister func(ctx context.Context) ([]Entry, error)

// DefaultDirs returns the standard application locations for goos. home is
// the user's home directory and getenv is used for XDG and Windows
// variables.
func DefaultDirs(goos, home string, getenv func(string) string) []Dir {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	switch goos {
	case "darwin":
		return []Dir{
			{Path: "/Applications", MaxDepth: 2},
			{Path: "/System/Applications", MaxDepth: 2},
			{Path: filepath.Join(home, "Applications"), MaxDepth: 2},
		}
	case "windows":
		profile := env("USERPROFILE", home)
		return []Dir{
			{Path: filepath.Join(profile, "OneDrive", "Desktop")},
			{Path: filepath.Join(profile, "Desktop")},
			{Path: filepath.Join(env("ProgramData", `C:\ProgramData`), "Microsoft", "Windows", "Start Menu", "Programs")},
			{Path: filepath.Join(env("APPDATA", filepath.Join(profile, "AppData", "Roaming")), "Microsoft", "Windows", "Start Menu", "Programs")},
			{Path: env("ProgramFiles", `C:\Program Files`), MaxDepth: 2},
			{Path: env("ProgramFiles(x86)", `C:\Program Files (x86)`), MaxDepth: 2},
		}
	default:
		dataHome := env("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
		dirs := []Dir{{Path: filepath.Join(dataHome, "applications")}}
		for _, d := range filepath.SplitList(env("XDG_DATA_DIRS", "/usr/local/share:/usr/share")) {
			dirs = append(dirs, Dir{Path: filepath.Join(d, "applications")})
		}
		return append(dirs,
			Dir{Path: filepath.Join(dataHome, "flatpak", "exports", "share", "applications")},
			Dir{Path: "/var/lib/flatpak/exports/share/applications"},
			Dir{Path: "/var/lib/snapd/desktop/applications"},
		)
	}
}

// DefaultListers returns the non-directory sources for goos.
func DefaultListers(goos string) []Lister {
	if goos == "windows" {
		return []Lister{StoreApps}
	}
	return nil
}

// Build scans dirs in order, then runs listers, and returns the resulting
// snapshot. When two sources provide the same name the first one wins.
// Missing directories are skipped; per-file errors are collected and
// returned joined alongside the snapshot.
func Build(ctx context.Context, dirs []Dir, listers ...Lister) (*Snapshot, error) {
	var (
		entries []Entry
		errs    []error
	)
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := scanDir(d)
		entries = append(entries, found...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range listers {
		found, err := l(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, found...)
	}
	return newSnapshot(entries, time.Now()), errors.Join(errs...)
}

func scanDir(d Dir) ([]Entry, error) {
	root := filepath.Clean(d.Path)
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return nil, nil
	}

	var (
		entries []Entry
		errs    []error
	)
	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subdirectories are common under Program Files.
			if de != nil && de.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		depth := depthOf(root, path)
		if de.IsDir() {
			if strings.EqualFold(filepath.Ext(path), ".app") {
				entries = append(entries, bundleEntry(path))
				return fs.SkipDir
			}
			if d.MaxDepth > 0 && depth >= d.MaxDepth && path != root {
				return fs.SkipDir
			}
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".desktop":
			e, ok, err := parseDesktopFile(path)
			if err != nil {
				errs = append(errs, err)
			} else if ok {
				entries = append(entries, e)
			}
		case ".lnk":
			entries = append(entries, fileEntry(path, KindShortcut))
		case ".exe":
			entries = append(entries, fileEntry(path, KindExecutable))
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("appindex: scan %s: %w", root, err))
	}
	return entries, errors.Join(errs...)
}

func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func fileEntry(path string, kind Kind) Entry {
	base := filepath.Base(path)
	display := strings.TrimSuffix(base, filepath.Ext(base))
	return Entry{Name: normalize(display), DisplayName: display, Kind: kind, Path: path}
}

func bundleEntry(path string) Entry {
	return fileEntry(path, KindBundle)
}

// parseDesktopFile reads the [Desktop Entry] group of a .desktop file. It
// reports false for entries that are hidden or not applications.
func parseDesktopFile(path string) (Entry, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, false, fmt.Errorf("appindex: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		inMain  bool
		name    string
		execStr string
		typ     = "Application"
		hidden  bool
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inMain = line == "[Desktop Entry]"
			continue
		}
		if !inMain {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			name = strings.TrimSpace(value)
		case "Exec":
			execStr = strings.TrimSpace(value)
		case "Type":
			typ = strings.TrimSpace(value)
		case "NoDisplay", "Hidden":
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				hidden = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("appindex: read %s: %w", path, err)
	}
	if hidden || typ != "Application" {
		return Entry{}, false, nil
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}
	return Entry{
		Name:        normalize(name),
		DisplayName: name,
		Kind:        KindDesktopEntry,
		Path:        path,
		Exec:        splitExec(execStr),
	}, true, nil
}

// splitExec tokenises an Exec value, honouring double quotes and dropping
// field codes such as %u and %F.
func splitExec(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		hasWord bool
	)
	flush := func() {
		if hasWord {
			w := cur.String()
			if !(len(w) == 2 && w[0] == '%') {
				args = append(args, strings.ReplaceAll(w, "%%", "%"))
			}
		}
		cur.Reset()
		hasWord = false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
			hasWord = true
		case c == '\\' && quoted && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case (c == ' ' || c == '\t') && !quoted:
			flush()
		default:
			cur.WriteByte(c)
			hasWord = true
		}
	}
	flush()
	return args
}

// StoreApps lists Windows Store applications through PowerShell's
// Get-StartApps.
func StoreApps(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		"Get-StartApps | ConvertTo-Json -Compress").Output()
	if err != nil {
		return nil, fmt.Errorf("appindex: Get-StartApps: %w", err)
	}
	return parseStartApps(out)
}

type startApp struct {
	Name  string `json:"Name"`
	AppID string `json:"AppID"`
}

// parseStartApps decodes Get-StartApps JSON, which is an object when only
// one app exists and an array otherwise.
func parseStartApps(data []byte) ([]Entry, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, nil
	}
	var apps []startApp
	if data[0] == '{' {
		var one startApp
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("appindex: decode start apps: %w", err)
		}
		apps = append(apps, one)
	} else if err := json.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("appindex: decode start apps: %w", err)
	}

	entries := make([]Entry, 0, len(apps))
	for _, a := range apps {
		if a.Name == "" || a.AppID == "" {
			continue
		}
		entries = append(entries, Entry{Name: normalize(a.Name), DisplayName: a.Name, Kind: KindStoreApp, Path: a.AppID})
	}
	return entries, nil
}
