package version

import (
	"runtime/debug"
	"testing"
)

func TestInfoString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v0.3.0"}, "v0.3.0"},
		{Info{Version: "v0.3.0", Commit: "0123456789abcdef"}, "v0.3.0 (0123456789ab)"},
		{Info{Version: "dev", Commit: "abc", Modified: true}, "dev (abc-dirty)"},
	}
	for _, tc := range tests {
		if got := tc.info.String(); got != tc.want {
			t.Errorf("String(%+v): got %q want %q", tc.info, got, tc.want)
		}
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "deadbeef"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	var info Info
	fillFromBuildInfo(&info, bi)
	if info.Version != "" || info.Commit != "deadbeef" || !info.Modified || info.GoVersion != "go1.26.0" {
		t.Fatalf("info = %+v", info)
	}

	pinned := Info{Commit: "cafe", BuildTime: "yesterday"}
	fillFromBuildInfo(&pinned, bi)
	if pinned.Commit != "cafe" || pinned.BuildTime != "yesterday" {
		t.Fatalf("ldflags values overwritten: %+v", pinned)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	t.Parallel()
	if Resolve().Version == "" {
		t.Fatal("Resolve returned an empty version")
	}
}
