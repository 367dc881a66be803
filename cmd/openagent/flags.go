// ABOUTME: CLI flag parsing using stdlib flag package
// ABOUTME: Supports --python, --backend, --print, --output-format, --offline, --verbose, --version

package main

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
)

type cliArgs struct {
	python       string
	backend      string
	print        bool
	outputFormat string
	offline      bool
	verbose      bool
	version      bool
	prompt       []string
}

var outputFormats = []string{"text", "json", "stream-json"}

// parseFlags parses args (without the program name). Output for -h and
// usage errors goes to out.
func parseFlags(args []string, out io.Writer) (cliArgs, error) {
	var a cliArgs
	fs := flag.NewFlagSet("openagent", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&a.python, "python", "", "Python interpreter used to launch the backend")
	fs.StringVar(&a.backend, "backend", "", "Full backend command line (overrides --python and config)")
	fs.BoolVar(&a.print, "print", false, "Non-interactive print mode")
	fs.BoolVar(&a.print, "p", false, "Shorthand for --print")
	fs.StringVar(&a.outputFormat, "output-format", "text", "Print mode output: text, json, stream-json")
	fs.BoolVar(&a.offline, "offline", false, "Do not start the backend")
	fs.BoolVar(&a.verbose, "verbose", false, "Debug logging")
	fs.BoolVar(&a.version, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return cliArgs{}, err
	}
	a.prompt = fs.Args()

	if !slices.Contains(outputFormats, a.outputFormat) {
		err := fmt.Errorf("unknown output format %q (want %s)", a.outputFormat, strings.Join(outputFormats, ", "))
		fmt.Fprintln(out, err)
		fs.Usage()
		return cliArgs{}, err
	}
	return a, nil
}

// promptText joins the positional arguments into a single prompt.
func (a cliArgs) promptText() string {
	return strings.Join(a.prompt, " ")
}
