// periscope is a host-side diagnostic CLI: it spawns a worker from
// the runtime registry and runs a few introspection calls against it,
// exercising the same path the analysis engine uses.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/calanthe/periscope/config"
	"github.com/calanthe/periscope/remote"
	"github.com/calanthe/periscope/trace"
)

var (
	configDir   = flag.String("config", ".", "directory to search upward from for periscope.toml")
	runtimeName = flag.String("runtime", "", "runtime entry from periscope.toml")
	workerExec  = flag.String("worker", "", "worker executable (overrides -runtime)")
	supportRoot = flag.String("support-root", "", "support library root passed to the worker")
	sysPath     = flag.Bool("sys-path", false, "print the worker's module search path")
	inspectRoot = flag.String("inspect", "", "inspect the named root object")
	verbose     = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: periscope [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	command, traceCfg, err := resolveCommand()
	if err != nil {
		return err
	}

	var opts []remote.RegistryOption
	if traceCfg != nil && traceCfg.Enabled {
		rec, err := trace.Open(traceCfg.Path)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts = append(opts, remote.WithRecorder(rec))
	}

	registry := remote.NewRegistry(opts...)
	defer registry.Close()

	if *sysPath {
		paths, err := registry.Get(command).GetSysPath()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
	}

	if *inspectRoot != "" {
		if err := inspect(registry, command, *inspectRoot); err != nil {
			return err
		}
	}

	return nil
}

func inspect(registry *remote.Registry, command remote.Command, root string) error {
	eval := registry.NewEvaluator(command)
	defer eval.Close()

	result, err := eval.Invoke("get_root", []any{root}, nil)
	if err != nil {
		return err
	}
	h, ok := result.(*remote.Handle)
	if !ok {
		return fmt.Errorf("root %q is not a remote object (got %T)", root, result)
	}

	typeName, err := h.TypeName()
	if err != nil {
		return err
	}
	repr, err := h.Repr()
	if err != nil {
		return err
	}
	names, err := h.AttributeNames()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", root, typeName)
	fmt.Printf("  value: %s\n", repr)
	fmt.Printf("  attributes:\n")
	for _, name := range names {
		fmt.Printf("    %s\n", name)
	}
	return nil
}

func resolveCommand() (remote.Command, *config.Trace, error) {
	if *workerExec != "" {
		return remote.Command{Exec: *workerExec, SupportRoot: *supportRoot}, nil, nil
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		return remote.Command{}, nil, err
	}
	if cfg == nil {
		return remote.Command{}, nil, fmt.Errorf("no periscope.toml found from %s (or pass -worker)", *configDir)
	}
	if *runtimeName == "" {
		return remote.Command{}, nil, fmt.Errorf("-runtime is required with a config file")
	}
	rt, err := cfg.Runtime(*runtimeName)
	if err != nil {
		return remote.Command{}, nil, err
	}

	command := remote.Command{
		Exec:        rt.Exec,
		Args:        rt.Args,
		SupportRoot: rt.SupportRoot,
		Env:         rt.Env,
	}
	if len(rt.SearchPaths) > 0 {
		command.Env = append(command.Env,
			"PERISCOPE_PATH="+strings.Join(rt.SearchPaths, string(os.PathListSeparator)))
	}
	if *supportRoot != "" {
		command.SupportRoot = *supportRoot
	}
	return command, &cfg.Trace, nil
}
