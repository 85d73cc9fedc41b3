package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fleetjobs/internal/estimate"
	"fleetjobs/internal/model"
)

func runGroups(args []string, out io.Writer) error {
	fs := newFlagSet("groups", out)
	common := addCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	groups := a.groups.List()
	if *jsonOut {
		return printJSON(out, groups)
	}
	if len(groups) == 0 {
		fmt.Fprintln(out, "no saved groups")
		return nil
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.ID,
			g.Name,
			truncateRunes(g.ConditionText, 40),
			formatCount(g.DeviceCount),
			formatTimestamp(g.CreatedAt),
		})
	}
	fmt.Fprint(out, renderTable([]string{"ID", "NAME", "CONDITION", "DEVICES", "CREATED"}, rows))
	return nil
}

type estimateResult struct {
	Condition string          `json:"condition"`
	Estimate  estimate.Result `json:"estimate"`
}

func runEstimate(args []string, out io.Writer) error {
	fs := newFlagSet("estimate", out)
	common := addCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	condition := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if condition == "" {
		return errors.New("usage: fleetjobs estimate [flags] <condition>")
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	res := estimateResult{
		Condition: condition,
		Estimate:  estimate.ForHubs(condition, a.fleet.LinkedHubs()),
	}
	if *jsonOut {
		return printJSON(out, res)
	}
	fmt.Fprintln(out, kv("condition", condition))
	fmt.Fprintln(out, kv("devices", formatCount(res.Estimate.DeviceCount)))
	fmt.Fprintln(out, kv("assets", formatCount(res.Estimate.AssetCount)))
	fmt.Fprintln(out, kv("hubs", strings.Join(res.Estimate.Hubs, ", ")))
	return nil
}

type hubsResult struct {
	Namespace string            `json:"namespace"`
	Totals    model.FleetTotals `json:"totals"`
	Hubs      []model.Hub       `json:"hubs"`
}

func runHubs(args []string, out io.Writer) error {
	fs := newFlagSet("hubs", out)
	common := addCommonFlags(fs)
	link := fs.String("link", "", "link a new hub with this name")
	region := fs.String("region", "", "region of the linked hub")
	devices := fs.Int("devices", 0, "device count of the linked hub")
	assets := fs.Int("assets", 0, "asset count of the linked hub")
	wait := fs.Bool("wait", false, "wait until the linked hub is healthy")
	unlink := fs.String("unlink", "", "unlink the hub with this name")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	a, err := openApp(common, appOptions{LogFallback: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	if name := strings.TrimSpace(*unlink); name != "" {
		if !a.fleet.UnlinkHub(name) {
			return fmt.Errorf("hub %q not found", name)
		}
	}
	if name := strings.TrimSpace(*link); name != "" {
		h, err := a.fleet.LinkHub(model.Hub{
			Name:        name,
			Region:      strings.TrimSpace(*region),
			DeviceCount: *devices,
			AssetCount:  *assets,
		})
		if err != nil {
			return err
		}
		if *wait {
			if err := waitForHubLinked(a, h.Name, a.cfg.HubLinkDelay); err != nil {
				return err
			}
		}
	}

	res := hubsResult{
		Namespace: a.fleet.Namespace(),
		Totals:    a.fleet.Totals(),
		Hubs:      a.fleet.Hubs(),
	}
	if *jsonOut {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "namespace: %s | %s devices | %s assets (linked hubs)\n",
		res.Namespace, formatCount(res.Totals.Devices), formatCount(res.Totals.Assets))
	rows := make([][]string, 0, len(res.Hubs))
	for _, h := range res.Hubs {
		rows = append(rows, []string{
			h.Name,
			defaultIfEmpty(h.Region, "-"),
			string(h.Status),
			formatCount(h.DeviceCount),
			formatCount(h.AssetCount),
		})
	}
	fmt.Fprint(out, renderTable([]string{"HUB", "REGION", "STATUS", "DEVICES", "ASSETS"}, rows))
	return nil
}

const hubPollInterval = 50 * time.Millisecond

func waitForHubLinked(a *app, name string, delay time.Duration) error {
	deadline := time.Now().Add(delay + 5*time.Second)
	for {
		h, ok := a.fleet.FindHub(name)
		if !ok {
			return fmt.Errorf("hub %q disappeared while linking", name)
		}
		if h.Status != model.HubAdding {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("hub %q still linking after %s", name, delay)
		}
		time.Sleep(hubPollInterval)
	}
}
