package forensics

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Development pattern classifications derived from commit history.
const (
	PatternUnknown      = "Unknown"
	PatternSingleCommit = "Single Commit Pattern"
	PatternMonolithic   = "Monolithic Dump"
	PatternIterative    = "Iterative Development"
)

// monolithicThreshold separates a one-shot history dump from iterative work.
const monolithicThreshold = 10 * time.Minute

// historyTimeout is the hard wall-clock budget for log extraction.
const historyTimeout = 10 * time.Second

// Commit is one entry of the extracted history.
type Commit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
}

// GitForensics is the machine-readable development narrative of a repo.
type GitForensics struct {
	CommitCount int      `json:"commit_count"`
	TimeDelta   float64  `json:"time_delta_seconds"`
	Pattern     string   `json:"development_pattern"`
	Commits     []Commit `json:"commits,omitempty"`
}

// Clone clones url into dir. The caller owns dir and its lifecycle; the
// context carries the hard wall-clock timeout for the sandboxed operation.
func Clone(ctx context.Context, url, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", url, ".")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("forensics: git clone %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// History extracts the commit log of the repo at dir and classifies its
// development pattern. Any failure yields the zero value with
// PatternUnknown; history extraction never raises.
func History(ctx context.Context, dir string) GitForensics {
	f := GitForensics{Pattern: PatternUnknown}

	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "log", "--pretty=format:%H|%cI|%s", "--reverse")
	out, err := cmd.Output()
	if err != nil {
		return f
	}

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 3 {
			continue
		}
		f.Commits = append(f.Commits, Commit{Hash: parts[0], Date: parts[1], Summary: parts[2]})
	}
	f.CommitCount = len(f.Commits)
	if f.CommitCount == 0 {
		return f
	}
	if f.CommitCount < 2 {
		f.Pattern = PatternSingleCommit
		return f
	}

	first, err1 := time.Parse(time.RFC3339, f.Commits[0].Date)
	last, err2 := time.Parse(time.RFC3339, f.Commits[len(f.Commits)-1].Date)
	if err1 != nil || err2 != nil {
		return f
	}
	delta := last.Sub(first)
	f.TimeDelta = delta.Seconds()
	if delta < monolithicThreshold {
		f.Pattern = PatternMonolithic
	} else {
		f.Pattern = PatternIterative
	}
	return f
}
