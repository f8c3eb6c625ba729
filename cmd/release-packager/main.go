package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"matinee.app/mcp-matinee/internal/buildinfo"
	"matinee.app/mcp-matinee/internal/release"
)

func main() {
	outDir := flag.String("out", "dist", "output directory for release artifacts")
	version := flag.String("version", buildinfo.Version, "version stamped into the binaries and archive names")
	commit := flag.String("commit", "", "commit stamped into the binaries (default: git rev-parse --short HEAD)")
	flag.Parse()

	artifacts, err := release.BuildArtifacts(context.Background(), release.Options{
		OutDir:   *outDir,
		RepoRoot: ".",
		Version:  *version,
		Commit:   *commit,
		Targets:  release.DefaultTargets,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for _, artifact := range artifacts {
		fmt.Println(artifact.ArchiveName)
	}
	fmt.Println("SHA256SUMS")
}
