package cli

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/config"
	"fleetjobs/internal/estimate"
	"fleetjobs/internal/fleet"
	"fleetjobs/internal/groups"
	"fleetjobs/internal/jobstore"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/wizard"
)

// commonFlags are accepted by every command that opens the fleet.
type commonFlags struct {
	configFile  string
	envFile     string
	fleetFile   string
	historyFile string
	operator    string
}

func addCommonFlags(fs *pflag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configFile, "config", "", "config file (default: ./fleetjobs.yaml if present)")
	fs.StringVar(&f.envFile, "env-file", "", "env file loaded before FLEETJOBS_* overrides (default: .env if present)")
	fs.StringVar(&f.fleetFile, "fleet", "", "fleet topology YAML (default: built-in namespace)")
	fs.StringVar(&f.historyFile, "history", "", "job history JSON (default: built-in history)")
	fs.StringVar(&f.operator, "operator", "", "operator recorded as job creator")
	return f
}

// app is everything a command needs, wired from config.
type app struct {
	cfg       config.Config
	log       *logging.Logger
	clock     clock.Clock
	fleet     *fleet.Topology
	groups    *groups.Store
	jobs      *jobstore.Store
	estimates *estimate.Task
	wizard    *wizard.Engine
}

type appOptions struct {
	// LogFallback receives log output when no log file is configured.
	LogFallback io.Writer
	Clock       clock.Clock
}

func openApp(flags *commonFlags, opts appOptions) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: flags.configFile,
		EnvFile:    flags.envFile,
	})
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(flags.fleetFile); v != "" {
		cfg.FleetFile = v
	}
	if v := strings.TrimSpace(flags.historyFile); v != "" {
		cfg.HistoryFile = v
	}
	if v := strings.TrimSpace(flags.operator); v != "" {
		cfg.Operator = v
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	log := logging.New(cfg.Log, opts.LogFallback)
	fail := func(err error) (*app, error) {
		_ = log.Close()
		return nil, err
	}

	fleetFile, err := fleet.LoadFile(cfg.FleetFile)
	if err != nil {
		return fail(err)
	}
	history, err := jobstore.LoadHistory(cfg.HistoryFile)
	if err != nil {
		return fail(err)
	}

	topo := fleet.NewTopology(fleetFile, fleet.Options{
		Clock:     opts.Clock,
		LinkDelay: cfg.HubLinkDelay,
		Logger:    log.WithField("component", "fleet"),
	})
	groupStore := groups.NewStore(fleetFile.Groups, opts.Clock, log.WithField("component", "groups"))
	jobs, err := jobstore.New(history, jobstore.Options{
		Clock:  opts.Clock,
		Logger: log.WithField("component", "jobstore"),
	})
	if err != nil {
		return fail(err)
	}
	task := estimate.NewTask(estimate.TaskOptions{
		Clock:  opts.Clock,
		Delay:  cfg.EstimateDelay,
		Hubs:   topo.LinkedHubs,
		Logger: log.WithField("component", "estimate"),
	})
	engine, err := wizard.New(wizard.Options{
		Groups:    groupStore,
		Fleet:     topo,
		Estimates: task,
		Clock:     opts.Clock,
		Operator:  cfg.Operator,
		Logger:    log.WithField("component", "wizard"),
	})
	if err != nil {
		return fail(err)
	}

	log.WithFields(logrus.Fields{
		"namespace": topo.Namespace(),
		"hubs":      len(topo.Hubs()),
		"jobs":      len(history),
	}).Debug("fleet opened")

	return &app{
		cfg:       cfg,
		log:       log,
		clock:     opts.Clock,
		fleet:     topo,
		groups:    groupStore,
		jobs:      jobs,
		estimates: task,
		wizard:    engine,
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	a.estimates.Clear()
	_ = a.log.Close()
}
