package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Deep     bool
	Agents   int
	Attach   string
	Save     string
	Config   string
	Addr     string
	Verbose  bool
	Offline  bool
	Serve    bool
	ServeMCP bool
	Force    bool
	Version  bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("conclave", flag.ContinueOnError)
	fs.BoolVar(&flags.Deep, "deep", false, "run the six-agent deep topology")
	fs.IntVar(&flags.Agents, "agents", 0, "ensemble size (2-8, default from config)")
	fs.StringVar(&flags.Attach, "attach", "", "attach a file to the question")
	fs.StringVar(&flags.Save, "save", "", "save the exchange as a transcript JSON file")
	fs.StringVar(&flags.Config, "config", ".", "directory holding conclave.yml")
	fs.StringVar(&flags.Addr, "addr", "", "listen address for -serve (default from config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Offline, "offline", false, "answer with the scripted offline client")
	fs.BoolVar(&flags.Serve, "serve", false, "run the HTTP API server")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server on stdio")
	fs.BoolVar(&flags.Force, "force", false, "overwrite existing files during init")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}
	if flags.Serve {
		return runServe(flags)
	}
	if flags.ServeMCP {
		return runServeMCP(flags)
	}

	rest := fs.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "export":
			return runExport(rest[1:])
		case "diagram":
			return runDiagram(flags)
		case "init":
			return runInit(flags.Config, flags.Force)
		}
	}

	return runAsk(flags, strings.Join(rest, " "))
}
