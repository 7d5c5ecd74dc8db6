package domain

import (
	"reflect"
	"testing"
)

func TestTargetConfigDestinations(t *testing.T) {
	t.Parallel()

	tgt := TargetConfig{Host: "build.local", Path: "/srv/app", User: "deploy", Port: 2222, SSHKey: "~/.ssh/id"}
	if got := tgt.RsyncDestination(); got != "deploy@build.local:/srv/app" {
		t.Fatalf("RsyncDestination() = %q", got)
	}
	if got := tgt.SSHArgs(); !reflect.DeepEqual(got, []string{"-p", "2222", "-i", "~/.ssh/id"}) {
		t.Fatalf("SSHArgs() = %v", got)
	}

	bare := TargetConfig{Host: "h", Path: "/p", Port: 22}
	if got := bare.RsyncDestination(); got != "h:/p" {
		t.Fatalf("RsyncDestination() = %q", got)
	}
	if got := bare.SSHArgs(); len(got) != 0 {
		t.Fatalf("SSHArgs() = %v, want none for default port", got)
	}
}
