// Command truthmatch merges per-tract truth catalogs and matches them against
// an object catalog by nearest sky position.
//
//	truthmatch [flags] <truth-dir-or-template>
//
// The input path may contain {} which is replaced by each tract given with
// -tracts or -tract-list. With -matching-only the input is a merged truth
// table rather than a directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/truthmatch/internal/config"
	"github.com/banshee-data/truthmatch/internal/fsutil"
	"github.com/banshee-data/truthmatch/internal/match"
	"github.com/banshee-data/truthmatch/internal/monitoring"
	"github.com/banshee-data/truthmatch/internal/pipeline"
	"github.com/banshee-data/truthmatch/internal/registry"
	"github.com/banshee-data/truthmatch/internal/timeutil"
	"github.com/banshee-data/truthmatch/internal/version"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// cliFlags holds the parsed command line. Flags that were not set on the
// command line leave the config file value in place.
type cliFlags struct {
	configPath  string
	objectPath  string
	tracts      string
	tractList   string
	showVersion bool

	name         string
	outputDir    string
	format       string
	validate     bool
	silent       bool
	matchingOnly bool
	nCores       int
	searcher     string
	batchSize    int
	writeClaims  bool
	plotDir      string
	registry     string
	metricsFile  string
	truthTypes   string
	summaryUnits string
}

func newFlagSet(out io.Writer) (*flag.FlagSet, *cliFlags) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("truthmatch", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: truthmatch [flags] <truth-dir-or-template>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "Pipeline config file (.json, .yaml or .yml)")
	fs.StringVar(&f.objectPath, "object-catalog-path", "", "Object catalog to match against, may contain {} for the tract")
	fs.StringVar(&f.tracts, "tracts", "", "Comma separated tracts substituted for {} in the paths")
	fs.StringVar(&f.tractList, "tract-list", "", "File with one tract per line")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	fs.StringVar(&f.name, "name", "truth", "Base name of output files")
	fs.StringVar(&f.outputDir, "output-dir", ".", "Output directory")
	fs.StringVar(&f.outputDir, "o", ".", "Shorthand for -output-dir")
	fs.StringVar(&f.format, "format", config.FormatCSV, "Output format: csv, csv.gz or sqlite")
	fs.BoolVar(&f.validate, "validate", false, "Fail on invalid merged or matched tables")
	fs.BoolVar(&f.silent, "silent", false, "Only log warnings and errors")
	fs.BoolVar(&f.matchingOnly, "matching-only", false, "Input is a merged truth table; skip merging")
	fs.IntVar(&f.nCores, "n-cores", 1, "Regions processed in parallel")
	fs.StringVar(&f.searcher, "searcher", "kdtree", "Nearest neighbour searcher: "+strings.Join(match.SearcherNames, ", "))
	fs.IntVar(&f.batchSize, "batch-size", match.DefaultBatchSize, "Objects queried per batch")
	fs.BoolVar(&f.writeClaims, "write-claims", false, "Also write every object claim to <name>_tract<tract>_claims.<format>")
	fs.StringVar(&f.plotDir, "plot-dir", "", "Write a separation histogram and HTML report per region to this directory")
	fs.StringVar(&f.registry, "registry", "", "SQLite run registry to record results in")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	fs.StringVar(&f.truthTypes, "truth-types", "", "Comma separated truth file prefixes, in type order")
	fs.StringVar(&f.summaryUnits, "summary-units", "arcsec", "Units for the logged separation summary")
	return fs, f
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(fs *flag.FlagSet, f *cliFlags) (*config.PipelineConfig, error) {
	cfg := config.EmptyConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			cfg.Name = &f.name
		case "output-dir", "o":
			cfg.OutputDir = &f.outputDir
		case "format":
			cfg.OutputFormat = &f.format
		case "validate":
			cfg.Validate = &f.validate
		case "silent":
			cfg.Silent = &f.silent
		case "matching-only":
			cfg.MatchingOnly = &f.matchingOnly
		case "n-cores":
			cfg.NCores = &f.nCores
		case "searcher":
			cfg.Searcher = &f.searcher
		case "batch-size":
			cfg.BatchSize = &f.batchSize
		case "write-claims":
			cfg.WriteClaims = &f.writeClaims
		case "plot-dir":
			cfg.PlotDir = &f.plotDir
		case "registry":
			cfg.RegistryPath = &f.registry
		case "metrics-file":
			cfg.MetricsFile = &f.metricsFile
		case "summary-units":
			cfg.SummaryUnits = &f.summaryUnits
		case "truth-types":
			cfg.TruthTypes = nil
			for _, p := range strings.Split(f.truthTypes, ",") {
				if p = strings.TrimSpace(p); p != "" {
					cfg.TruthTypes = append(cfg.TruthTypes, p)
				}
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// regionsFor expands the input and object templates over the requested
// tracts.
func regionsFor(fsys fsutil.FileSystem, input string, f *cliFlags) ([]pipeline.Region, error) {
	tracts, err := pipeline.ParseTracts(f.tracts)
	if err != nil {
		return nil, err
	}
	if f.tractList != "" {
		more, err := pipeline.ReadTractList(fsys, f.tractList)
		if err != nil {
			return nil, err
		}
		tracts = append(tracts, more...)
	}
	return pipeline.ExpandRegions(input, f.objectPath, tracts)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs, f := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if f.showVersion {
		fmt.Fprintf(stderr, "truthmatch %s\n", version.String())
		return exitOK
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(fs, f)
	if err != nil {
		fmt.Fprintf(stderr, "truthmatch: %v\n", err)
		return exitUsage
	}

	log := monitoring.New(stderr)
	if cfg.GetSilent() {
		log = monitoring.Silent(log)
	}
	monitoring.SetDefault(log)

	fsys := fsutil.OSFileSystem{}
	clock := timeutil.RealClock{}

	regions, err := regionsFor(fsys, fs.Arg(0), f)
	if err != nil {
		log.Errorf("%v", err)
		return exitUsage
	}
	searcher, err := match.SearcherByName(cfg.GetSearcher())
	if err != nil {
		log.Errorf("%v", err)
		return exitUsage
	}

	started := clock.Now()
	results := pipeline.RunRegions(ctx, regions, pipeline.Options{
		Name:          cfg.GetName(),
		OutputDir:     cfg.GetOutputDir(),
		OutputFormat:  cfg.GetOutputFormat(),
		TruthTypes:    cfg.GetTruthTypes(),
		Validate:      cfg.GetValidate(),
		MatchingOnly:  cfg.GetMatchingOnly(),
		Searcher:      searcher,
		BatchSize:     cfg.GetBatchSize(),
		ObjectColumns: cfg.GetObjectColumns(),
		WriteClaims:   cfg.GetWriteClaims(),
		PlotDir:       cfg.GetPlotDir(),
		SummaryUnits:  cfg.GetSummaryUnits(),
		NCores:        cfg.GetNCores(),
		Logger:        log,
		FS:            fsys,
		Clock:         clock,
	})

	code := exitOK
	failed := pipeline.Failed(results)
	if failed > 0 {
		log.Errorf("%d of %d regions failed", failed, len(results))
		code = exitFailed
	} else {
		log.Infof("finished %d regions in %s", len(results), clock.Since(started))
	}

	if path := cfg.GetRegistryPath(); path != "" {
		if err := record(ctx, path, cfg, searcher.Name(), started, clock, results, log); err != nil {
			log.Errorf("record run: %v", err)
			code = exitFailed
		}
	}

	if path := cfg.GetMetricsFile(); path != "" {
		m := pipeline.NewMetrics()
		for _, r := range results {
			m.Observe(r)
		}
		if err := m.WriteTextfile(path); err != nil {
			log.Errorf("%v", err)
			code = exitFailed
		}
	}
	return code
}

// record stores the run in the registry. It runs even after an interrupt so
// the regions that finished are not lost.
func record(ctx context.Context, path string, cfg *config.PipelineConfig, searcher string, started time.Time, clock timeutil.Clock, results []pipeline.RegionResult, log monitoring.Logger) error {
	store, err := registry.Open(path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	run := registry.NewRun(cfg.GetName(), version.String(), searcher, cfg.GetValidate(), started)
	run.FinishedAt = clock.Now()
	for _, r := range results {
		run.Regions = append(run.Regions, pipeline.RegistryRegion(r))
	}
	if err := store.Record(context.WithoutCancel(ctx), run); err != nil {
		return err
	}
	log.Infof("recorded run %s in %s", run.ID, path)
	return nil
}
