// Package preflight runs the startup readiness checks named in the
// external interfaces design: media roots and the workdir must be
// accessible, and the encoder/probe binaries must resolve. Failure here
// produces the non-zero startup exit code the design requires.
package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"spacesaver/internal/config"
	"spacesaver/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every startup check for the given config: the workdir
// (read/write), each configured media root (read-only is sufficient), and
// the encoder and ffprobe binaries.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Workdir", cfg.Paths.WorkDir, true))
	for _, dir := range cfg.Paths.MediaDirs {
		results = append(results, CheckDirectoryAccess("Media root "+dir, dir, false))
	}

	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "Encoder", Command: cfg.Encode.EncoderBinary, Description: "Required to transcode media"},
		{Name: "ffprobe", Command: cfg.Encode.FFprobeBinary, Description: "Required to probe media metadata"},
	})
	for _, s := range statuses {
		results = append(results, Result{Name: s.Name, Passed: s.Available, Detail: s.Detail})
	}

	return results
}

// Failed reports whether any check in results failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// CheckDirectoryAccess verifies that the directory exists and is
// accessible. When requireWrite is true, write access is also required
// (used for the workdir, where the worker writes scratch output).
func CheckDirectoryAccess(name, path string, requireWrite bool) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}

	mode := unix.R_OK | unix.X_OK
	if requireWrite {
		mode |= unix.W_OK
	}
	if err := unix.Access(path, uint32(mode)); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ok)", path)}
}
