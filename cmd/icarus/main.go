package main

import (
	"fmt"
	"os"

	"github.com/allaspectsdev/icarus/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "extract":
		cmdRefresh("extract", os.Args[2:])
	case "promote":
		cmdRefresh("promote", os.Args[2:])
	case "cache-status":
		cmdCacheStatus(os.Args[2:])
	case "credentials":
		cmdCredentials(os.Args[2:])
	case "init-config":
		cmdInitConfig()
	case "install-service":
		cmdInstallService(os.Args[2:])
	case "uninstall-service":
		cmdUninstallService()
	case "config-export":
		cmdConfigExport(os.Args[2:])
	case "config-import":
		cmdConfigImport(os.Args[2:])
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: icarus <command> [options]

Commands:
  start              Start the icarus daemon
  stop               Stop the running daemon
  status             Show daemon status and summary stats
  extract            Extract the source table into the staging snapshot
  promote            Promote the staging snapshot to active
  cache-status       Show cache tiers and refresh timestamps
  credentials        Manage service-account credentials (list|set|delete <account>)
  init-config        Generate default config file
  config-export      Export current config to a TOML file
  config-import      Import config from a TOML file
  install-service    Install as user service (launchd on macOS, systemd on Linux)
  uninstall-service  Remove the user service
  version            Print version information
  help               Show this help message

Options:
  --foreground       Run in foreground (with 'start')
  --config <file>    Use an explicit config file
  --file <path>      Read credentials JSON from a file (with 'credentials set')`)
}
