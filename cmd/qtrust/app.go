package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kardianos/qtrust"
	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tstore"
)

var logger = loggo.GetLogger("qtrust.cmd")

const (
	engineBolt     = "bolt"
	engineDir      = "dir"
	engineRegistry = "registry"

	defaultConfig = "~/.qtrust/config"
	defaultLog    = "<root>=WARNING"
)

type options struct {
	config  string
	engine  string
	data    string
	dict    string
	sealed  bool
	log     string
	metrics bool
}

type app struct {
	opts options

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	reg     *prometheus.Registry
	metrics *qtrust.Metrics
	engine  tstore.Engine
	store   *qtrust.Store
}

// run executes the command line args and releases the store afterwards.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out, errOut: errOut}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if a.opts.metrics && a.reg != nil {
		if merr := writeMetrics(out, a.reg); merr != nil && err == nil {
			err = merr
		}
	}
	if a.engine != nil {
		if cerr := a.engine.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}
	return err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "qtrust",
		Short: "Manage trusted TLS certificate authorities",
		Long: `qtrust keeps the certificate authorities this device trusts.

Use "qtrust trust host:port" to review the chain a server presents and
choose which authorities to trust.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.config, "config", defaultConfig, "Config file of key=T{value} lines")
	pf.StringVar(&a.opts.engine, "engine", engineBolt, "Storage engine: bolt, dir or registry")
	pf.StringVar(&a.opts.data, "data", "", "Storage location (file, directory or registry key)")
	pf.StringVar(&a.opts.dict, "dict", tdef.Dict, "Dictionary holding the anchors")
	pf.BoolVar(&a.opts.sealed, "sealed", false, "Encrypt entries at rest (dir engine)")
	pf.StringVar(&a.opts.log, "log", defaultLog, "Logging config, for example \"<root>=INFO;qtrust=DEBUG\"")
	pf.BoolVar(&a.opts.metrics, "metrics", false, "Print operation counters when done")

	root.AddCommand(
		a.trustCommand(),
		a.trustFileCommand(),
		a.listCommand(),
		a.getCommand(),
		a.savePEMCommand(),
		a.delCommand(),
		a.delAllCommand(),
		a.exportCommand(),
		a.importCommand(),
	)
	return root
}

// setup applies the config file, configures logging and opens the store.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.applyConfig(cmd.Flags().Changed); err != nil {
		return err
	}
	if err := loggo.ConfigureLoggers(a.opts.log); err != nil {
		return fmt.Errorf("invalid --log value: %w", err)
	}

	a.reg = prometheus.NewRegistry()
	a.metrics = qtrust.NewMetrics(a.reg)

	eng, err := openEngine(a.opts)
	if err != nil {
		return err
	}
	a.engine = eng
	logger.Debugf("using %s store at %s", a.opts.engine, eng.Path())

	store, err := qtrust.NewStore(qtrust.StoreConfig{
		Engine:  eng,
		Dict:    a.opts.dict,
		Metrics: a.metrics,
	})
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

// applyConfig fills options not set on the command line from the config
// file. A missing file at the default location is not an error.
func (a *app) applyConfig(changed func(name string) bool) error {
	kv, err := tstore.LoadKeyValue(a.opts.config)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !changed("config") {
			return nil
		}
		return fmt.Errorf("load config: %w", err)
	}

	known := map[string]bool{"engine": true, "data": true, "dict": true, "sealed": true, "log": true}
	var unknown []string
	for k := range kv {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("config %s: unknown keys %s", a.opts.config, strings.Join(unknown, ", "))
	}

	set := func(name string, dst *string) {
		if v, ok := kv[name]; ok && !changed(name) {
			*dst = strings.TrimSpace(string(v))
		}
	}
	set("engine", &a.opts.engine)
	set("data", &a.opts.data)
	set("dict", &a.opts.dict)
	set("log", &a.opts.log)
	if v, ok := kv["sealed"]; ok && !changed("sealed") {
		switch strings.ToLower(strings.TrimSpace(string(v))) {
		case "true", "1", "yes":
			a.opts.sealed = true
		case "false", "0", "no", "":
			a.opts.sealed = false
		default:
			return fmt.Errorf("config %s: sealed: invalid value %q", a.opts.config, v)
		}
	}
	return nil
}

func defaultData(engine string) string {
	switch engine {
	case engineBolt:
		return filepath.Join("~", ".qtrust", "trust.db")
	case engineDir:
		return filepath.Join("~", ".qtrust", "trust")
	case engineRegistry:
		return `CU\Software\qtrust`
	}
	return ""
}

func openEngine(opts options) (tstore.Engine, error) {
	data := opts.data
	if data == "" {
		data = defaultData(opts.engine)
	}
	switch opts.engine {
	case engineBolt:
		return tstore.OpenBolt(tstore.BoltConfig{Path: data})
	case engineDir:
		return tstore.OpenDir(tstore.DirConfig{Dir: data, Sealed: opts.sealed})
	case engineRegistry:
		return openRegistry(data)
	}
	return nil, fmt.Errorf("unknown engine %q", opts.engine)
}
