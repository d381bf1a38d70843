// periscope-worker is the disposable child process the host talks
// to. Launched as:
//
//	periscope-worker [options] <support-library-root>
//
// it enters the dispatch loop on stdin/stdout and exits with a
// non-zero status when the parent closes its input stream. Extra
// search roots may be supplied via PERISCOPE_PATH.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/calanthe/periscope/functions"
	"github.com/calanthe/periscope/worker"
)

var verbose = flag.Bool("v", false, "verbose logging on stderr")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: periscope-worker [options] <support-library-root>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	// Logging goes to stderr only; stdout belongs to the protocol.
	commonlog.Configure(verbosity, nil)

	var roots []string
	if flag.NArg() > 0 {
		root, err := filepath.Abs(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving support root: %v\n", err)
			os.Exit(2)
		}
		roots = append(roots, root)
	}
	if extra := os.Getenv("PERISCOPE_PATH"); extra != "" {
		for _, p := range strings.Split(extra, string(os.PathListSeparator)) {
			if p != "" {
				roots = append(roots, p)
			}
		}
	}
	functions.SetSearchPath(roots)
	functions.RegisterRoot("runtime", newRuntimeInfo())

	l := worker.NewListener(os.Stdin, os.Stdout)
	if err := l.Listen(); err != nil {
		// The parent went away. Not an error to report anywhere.
		os.Exit(1)
	}
}

// runtimeInfo is the default root object: basic facts about the
// runtime this worker embeds, reachable through handle calls.
type runtimeInfo struct {
	OS      string
	Arch    string
	Version string
}

func newRuntimeInfo() *runtimeInfo {
	return &runtimeInfo{
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Version: runtime.Version(),
	}
}

// NumCPU reports the worker's logical CPU count.
func (r *runtimeInfo) NumCPU() int { return runtime.NumCPU() }

// Pid reports the worker's process id, which is never the host's.
func (r *runtimeInfo) Pid() int { return os.Getpid() }
