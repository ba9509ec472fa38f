// ocm-tree prints a subtree of an on-disk content repository, either as an
// indented outline or as JSON. It can also print store statistics or check
// the store for broken links.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/i5heu/ouroboros-ocm"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		configPath string
		dataDir    string
		path       string
		depth      int
		asJSON     bool
		showStats  bool
		runCheck   bool
		logLevel   string
	)

	flagSet := pflag.NewFlagSet("ocm-tree", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file")
	flagSet.StringVarP(&dataDir, "data", "d", "", "repository directory (overrides the config paths)")
	flagSet.StringVarP(&path, "path", "p", "/", "absolute path of the subtree to print")
	flagSet.IntVar(&depth, "depth", -1, "levels of children to print, negative for all")
	flagSet.BoolVar(&asJSON, "json", false, "print JSON instead of an outline")
	flagSet.BoolVar(&showStats, "stats", false, "print store statistics instead of a subtree")
	flagSet.BoolVar(&runCheck, "check", false, "verify the links between stored records and chunks")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides the config)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	conf := ocm.DefaultConfig()
	conf.LogLevel = "warn"
	if configPath != "" {
		var err error
		if conf, err = ocm.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if dataDir != "" {
		conf.Paths = []string{dataDir}
		conf.InMemory = false
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	o, err := ocm.New(conf)
	if err != nil {
		return err
	}
	defer o.Close()

	if showStats {
		stats, err := o.Store().Stats()
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(stdout, stats)
		}
		return writeStats(stdout, stats)
	}

	if runCheck {
		report, err := o.Store().Check()
		if err != nil {
			return err
		}
		if asJSON {
			err = writeJSON(stdout, report)
		} else {
			err = writeReport(stdout, report)
		}
		if err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("store check found %d problems", len(report.Problems))
		}
		return nil
	}

	s, err := o.Login()
	if err != nil {
		return err
	}
	n, err := s.NodeByPath(path)
	if err != nil {
		return err
	}

	tree, err := buildTree(n, depth)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(stdout, tree)
	}
	return writeText(stdout, tree, 0)
}
