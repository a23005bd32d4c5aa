package intent_test

import (
	"testing"

	"github.com/MrWong99/jarvis/pkg/intent"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	r := intent.NewRouter()

	tests := []struct {
		in   string
		want intent.Action
	}{
		{"exit", intent.Exit()},
		{"quit", intent.Exit()},
		{"stop", intent.Exit()},
		{"open youtube", intent.OpenSite("youtube")},
		{"open github", intent.OpenSite("github")},
		{"launch spotify", intent.OpenSite("spotify")},
		{"open example.com", intent.OpenSite("example.com")},
		{"open visual studio code", intent.LaunchApp("visual studio code")},
		{"open the calculator app", intent.LaunchApp("the calculator app")},
		{"search for cats", intent.Search("cats")},
		{"google golang generics", intent.Search("golang generics")},
		{"find cheap flights", intent.Search("cheap flights")},
		{"what's the time?", intent.TellTime()},
		{"what is the time now", intent.TellTime()},
		{"time", intent.TellTime()},
		{"what's the date today?", intent.TellDate()},
		{"date", intent.TellDate()},
		{"note that buy milk", intent.MakeNote("buy milk")},
		{"take call the dentist", intent.MakeNote("call the dentist")},
		{"add eggs to the list", intent.MakeNote("eggs to the list")},
		{"open downloads folder", intent.OpenFolder("downloads")},
		{"open documents folder", intent.OpenFolder("documents")},
		{"open desktop  folder", intent.OpenFolder("desktop")},
		{"open downloads", intent.OpenSite("downloads")},
		{"asdkjalksjd", intent.Unrecognized()},
		{"", intent.Unrecognized()},
		{"what time is it", intent.Unrecognized()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := r.Classify(tt.in); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassify_ExitIsExactMatch(t *testing.T) {
	t.Parallel()

	r := intent.NewRouter()
	for _, in := range []string{"exit now", "please quit", "stop it", "exits"} {
		if got := r.Classify(in); got.Kind == intent.KindExit {
			t.Errorf("Classify(%q) = Exit, want a non-exit action", in)
		}
	}
}

func TestClassify_OpenPrefixLaunchesUnshapedTargets(t *testing.T) {
	t.Parallel()

	r := intent.NewRouter()
	for _, x := range []string{"microsoft word", "visual studio", "my music player", "paint 3d"} {
		got := r.Classify("open " + x)
		if got != intent.LaunchApp(x) {
			t.Errorf("Classify(%q) = %v, want %v", "open "+x, got, intent.LaunchApp(x))
		}
	}
}

func TestClassify_StrictOpenPrefixShadowsSiteAndFolder(t *testing.T) {
	t.Parallel()

	r := intent.NewRouter(intent.WithStrictOpenPrefix(true))

	tests := []struct {
		in   string
		want intent.Action
	}{
		{"open youtube", intent.LaunchApp("youtube")},
		{"open downloads folder", intent.LaunchApp("downloads folder")},
		{"launch youtube", intent.OpenSite("youtube")},
		{"search for cats", intent.Search("cats")},
	}
	for _, tt := range tests {
		if got := r.Classify(tt.in); got != tt.want {
			t.Errorf("strict Classify(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !r.Strict() {
		t.Error("Strict() = false, want true")
	}
}

func TestClassifyRule_ReportsRuleName(t *testing.T) {
	t.Parallel()

	r := intent.NewRouter()
	_, rule := r.ClassifyRule("open youtube")
	if rule != "open_site" {
		t.Errorf("rule = %q, want open_site", rule)
	}
	_, rule = r.ClassifyRule("gibberish")
	if rule != "" {
		t.Errorf("rule = %q, want empty for fallback", rule)
	}
}

func TestRules_FixedOrder(t *testing.T) {
	t.Parallel()

	want := []string{"exit", "launch_app", "open_site", "search", "tell_time", "tell_date", "make_note", "open_folder"}
	got := intent.NewRouter().Rules()
	if len(got) != len(want) {
		t.Fatalf("len(Rules()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Rules()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := intent.Normalize("  Open YouTube \n"); got != "open youtube" {
		t.Errorf("Normalize = %q, want %q", got, "open youtube")
	}
}

func TestActionString(t *testing.T) {
	t.Parallel()

	if got := intent.Search("cats").String(); got != "search(cats)" {
		t.Errorf("String() = %q", got)
	}
	if got := intent.TellTime().String(); got != "tell_time" {
		t.Errorf("String() = %q", got)
	}
}
