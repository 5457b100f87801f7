package main

import (
	"fmt"
	"io"
	rdebug "runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build info",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := rdebug.ReadBuildInfo()
		writeVersion(cmd.OutOrStdout(), version, info)
	},
}

// writeVersion prints the release version followed by the Go toolchain and
// VCS revision recorded in the binary, when available.
func writeVersion(w io.Writer, release string, info *rdebug.BuildInfo) {
	if release == "dev" && info != nil && info.Main.Version != "" && info.Main.Version != "(devel)" {
		release = info.Main.Version
	}
	fmt.Fprintf(w, "jobharvest %s\n", release)
	if info == nil {
		return
	}
	fmt.Fprintf(w, "  go:       %s\n", info.GoVersion)

	var revision, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified == "true" {
		revision += "-dirty"
	}
	fmt.Fprintf(w, "  revision: %s\n", revision)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
