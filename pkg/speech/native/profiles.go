package native

import (
	"bufio"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/MrWong99/jarvis/pkg/speech"
)

// Profile describes one command-line synthesizer. The text to speak is always
// written to the process's standard input.
type Profile struct {
	// Name is the executable looked up on PATH.
	Name string

	// Args builds the argument list from the settings. voice is the resolved
	// voice name, or "" for the default voice.
	Args func(s speech.Settings, voice string) []string

	// VoicesArgs lists the installed voices. nil disables voice selection.
	VoicesArgs []string

	// ParseVoices extracts voice names from the output of VoicesArgs.
	ParseVoices func(out string) []string
}

// DefaultProfiles returns the synthesizers to try on goos, in preference order.
func DefaultProfiles(goos string) []Profile {
	switch goos {
	case "darwin":
		return []Profile{sayProfile}
	case "windows":
		return []Profile{sapiProfile}
	default:
		return []Profile{espeakProfile("espeak-ng"), espeakProfile("espeak"), spdSayProfile}
	}
}

func hostProfiles() []Profile { return DefaultProfiles(runtime.GOOS) }

func espeakProfile(bin string) Profile {
	return Profile{
		Name: bin,
		Args: func(s speech.Settings, voice string) []string {
			args := []string{"--stdin"}
			if s.Rate > 0 {
				args = append(args, "-s", strconv.Itoa(s.Rate))
			}
			if s.Volume > 0 {
				// espeak amplitude: 0-200, default 100.
				args = append(args, "-a", strconv.Itoa(int(s.Volume*200)))
			}
			if voice != "" {
				args = append(args, "-v", voice)
			}
			return args
		},
		VoicesArgs:  []string{"--voices"},
		ParseVoices: parseColumn(3, true),
	}
}

var spdSayProfile = Profile{
	Name: "spd-say",
	Args: func(s speech.Settings, voice string) []string {
		args := []string{"-w", "-e"}
		if s.Rate > 0 {
			// spd-say rate is relative: -100..100 around ~175 wpm.
			args = append(args, "-r", strconv.Itoa(clamp((s.Rate-175)/2, -100, 100)))
		}
		if s.Volume > 0 {
			args = append(args, "-i", strconv.Itoa(clamp(int(s.Volume*200)-100, -100, 100)))
		}
		if voice != "" {
			args = append(args, "-y", voice)
		}
		return args
	},
	VoicesArgs:  []string{"-L"},
	ParseVoices: parseColumn(0, true),
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s{2,}`)

var sayProfile = Profile{
	Name: "say",
	Args: func(s speech.Settings, voice string) []string {
		args := []string{"-f", "-"}
		if s.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(s.Rate))
		}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return args
	},
	VoicesArgs: []string{"-v", "?"},
	ParseVoices: func(out string) []string {
		var names []string
		sc := bufio.NewScanner(strings.NewReader(out))
		for sc.Scan() {
			if m := sayVoiceLine.FindStringSubmatch(sc.Text()); m != nil {
				names = append(names, strings.TrimSpace(m[1]))
			}
		}
		return names
	},
}

var sapiProfile = Profile{
	Name: "powershell",
	Args: func(s speech.Settings, voice string) []string {
		var b strings.Builder
		b.WriteString("Add-Type -AssemblyName System.Speech;")
		b.WriteString("$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;")
		if s.Rate > 0 {
			// SAPI rate: -10..10 around ~180 wpm.
			fmt.Fprintf(&b, "$s.Rate = %d;", clamp((s.Rate-180)/20, -10, 10))
		}
		if s.Volume > 0 {
			fmt.Fprintf(&b, "$s.Volume = %d;", clamp(int(s.Volume*100), 0, 100))
		}
		if voice != "" {
			fmt.Fprintf(&b, "$s.SelectVoice('%s');", strings.ReplaceAll(voice, "'", "''"))
		}
		b.WriteString("$s.Speak([Console]::In.ReadToEnd());")
		return []string{"-NoProfile", "-NonInteractive", "-Command", b.String()}
	},
	VoicesArgs: []string{"-NoProfile", "-NonInteractive", "-Command",
		"Add-Type -AssemblyName System.Speech;" +
			"(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | ForEach-Object { $_.VoiceInfo.Name }"},
	ParseVoices: parseColumn(-1, false),
}

// parseColumn returns a parser that picks whitespace-separated column col from
// each non-empty line. col < 0 keeps the whole trimmed line.
func parseColumn(col int, skipHeader bool) func(string) []string {
	return func(out string) []string {
		var names []string
		sc := bufio.NewScanner(strings.NewReader(out))
		first := true
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if first && skipHeader {
				first = false
				continue
			}
			first = false
			if col < 0 {
				names = append(names, line)
				continue
			}
			fields := strings.Fields(line)
			if col < len(fields) {
				names = append(names, fields[col])
			}
		}
		return names
	}
}

// matchVoice returns the first voice whose name contains want,
// case-insensitively.
func matchVoice(voices []string, want string) (string, bool) {
	want = strings.ToLower(want)
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v), want) {
			return v, true
		}
	}
	return "", false
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
