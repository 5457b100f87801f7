package main

import (
	rdebug "runtime/debug"
	"strings"
	"testing"
)

func TestWriteVersion(t *testing.T) {
	info := &rdebug.BuildInfo{
		GoVersion: "go1.24.2",
		Main:      rdebug.Module{Version: "v0.4.1"},
		Settings: []rdebug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	var b strings.Builder
	writeVersion(&b, "dev", info)
	want := "jobharvest v0.4.1\n  go:       go1.24.2\n  revision: 0123456789ab-dirty\n"
	if b.String() != want {
		t.Errorf("got %q, want %q", b.String(), want)
	}

	b.Reset()
	writeVersion(&b, "v1.0.0", nil)
	if b.String() != "jobharvest v1.0.0\n" {
		t.Errorf("ldflags version should win, got %q", b.String())
	}
}
