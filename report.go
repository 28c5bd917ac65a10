package main

import (
	"context"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
)

// runScanMode streams discovered projects to stdout and prints a summary.
// No selection, no deletion.
func runScanMode(ctx context.Context, scanner *Scanner, root string) error {
	pterm.DefaultSection.Printfln("Scanning %s", root)

	ch := make(chan ScanEvent, 64)
	done := make(chan error, 1)
	go func() {
		defer close(ch)
		_, err := scanner.Scan(ctx, root, ch)
		done <- err
	}()

	var count int
	var totalSize int64
	for event := range ch {
		switch event := event.(type) {
		case ProjectFoundEvent:
			project := event.Project
			count++
			totalSize += project.TotalSize
			pterm.Printfln("%s %-8s  %s  %s",
				strategyGlyph(project.StrategyName),
				project.StrategyName,
				project.RootPath,
				pterm.Yellow(formatBytes(project.TotalSize)),
			)
		case ScanCompleteEvent:
			if event.Err != nil {
				break
			}
			pterm.Println()
			pterm.Success.Printfln("Scan complete in %s: %d project(s), %s reclaimable",
				event.Elapsed.Truncate(10*time.Millisecond), count, formatBytes(totalSize))
		}
	}

	return <-done
}

// runDeletion removes each selected project's still-existing targets. A
// target missing at delete time is silently skipped; a failed removal is
// reported and does not stop the rest of the worklist.
func runDeletion(projects []Project, dryRun bool) error {
	if len(projects) == 0 {
		pterm.Info.Println("Nothing selected, nothing deleted.")
		return nil
	}

	var totalSize int64
	for _, project := range projects {
		totalSize += project.TotalSize
	}
	pterm.DefaultSection.Printfln("Deleting %d project(s), %s", len(projects), formatBytes(totalSize))

	var failures int
	for _, project := range projects {
		for _, target := range project.Targets {
			if _, err := os.Stat(target); err != nil {
				continue
			}
			if dryRun {
				pterm.Printfln("would delete %s", target)
				continue
			}
			if err := os.RemoveAll(target); err != nil {
				failures++
				pterm.Error.Printfln("delete %s: %v", target, err)
				logrus.WithField("target", target).WithError(err).Error("deletion failed")
				continue
			}
			pterm.Printfln("deleted %s", target)
			logrus.WithFields(logrus.Fields{
				"target":  target,
				"project": project.RootPath,
			}).Info("deleted target")
		}
	}

	if dryRun {
		pterm.Info.Println("Dry run: nothing was deleted.")
	} else if failures > 0 {
		pterm.Warning.Printfln("Cleanup finished with %d failure(s).", failures)
	} else {
		pterm.Success.Println("Cleanup complete.")
	}
	return nil
}
