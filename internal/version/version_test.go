package version

import "testing"

func TestString(t *testing.T) {
	old := [3]string{Version, GitSHA, BuildTime}
	defer func() { Version, GitSHA, BuildTime = old[0], old[1], old[2] }()

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-10-01T00:00:00Z"
	want := "stick2wheel 1.2.0 (commit abc1234, built 2026-10-01T00:00:00Z)"
	if got := String("stick2wheel"); got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}
