package cli

import (
	"fmt"
	"io"
	"os"
)

func Run(args []string) error {
	return run(args, os.Stdout)
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printRootUsage(out)
		return nil
	}

	switch args[0] {
	case "manage":
		return runManage(args[1:], out)
	case "jobs":
		return runJobs(args[1:], out)
	case "show":
		return runShow(args[1:], out)
	case "groups":
		return runGroups(args[1:], out)
	case "estimate":
		return runEstimate(args[1:], out)
	case "hubs":
		return runHubs(args[1:], out)
	case "progress":
		return runProgress(args[1:], out)
	case "export":
		return runExport(args[1:], out)
	case "help", "-h", "--help":
		printRootUsage(out)
		return nil
	default:
		printRootUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage(out io.Writer) {
	fmt.Fprintln(out, "fleetjobs: create and track device fleet jobs")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Quick Start:")
	fmt.Fprintln(out, "  fleetjobs manage")
	fmt.Fprintln(out, "  fleetjobs jobs --status running")
	fmt.Fprintln(out, "  fleetjobs show job-1042")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  manage    interactive job browser and creation wizard")
	fmt.Fprintln(out, "  jobs      list jobs with search, filters and sorting")
	fmt.Fprintln(out, "  show      job detail, per-hub progress and timeline")
	fmt.Fprintln(out, "  groups    list saved target groups")
	fmt.Fprintln(out, "  estimate  estimate devices and assets matched by a condition")
	fmt.Fprintln(out, "  hubs      list hubs; --link adds a hub")
	fmt.Fprintln(out, "  progress  apply a hub progress report to a job")
	fmt.Fprintln(out, "  export    write the job list as a JSON report")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Notes:")
	fmt.Fprintln(out, "  - Use --json on commands for machine-readable output")
	fmt.Fprintln(out, "  - Jobs live in memory; --history seeds them from a JSON file")
	fmt.Fprintln(out, "  - Settings come from fleetjobs.yaml, .env and FLEETJOBS_* variables")
}
