package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"upside-down-research.com/oss/goap/internal/commands"
)

var CLI struct {
	Run      commands.RunCommand      `cmd:"" help:"Plan and execute a scenario" default:"withargs"`
	Plan     commands.PlanCommand     `cmd:"" help:"Search a plan for a scenario goal"`
	Analyze  commands.AnalyzeCommand  `cmd:"" help:"Estimate cost, duration and parallelism of a plan"`
	Validate commands.ValidateCommand `cmd:"" help:"Validate a scenario file"`
	Events   commands.EventsCommand   `cmd:"" help:"List events stored for a run"`
	Doctor   commands.DoctorCommand   `cmd:"" help:"Run system diagnostics"`
	Config   commands.ConfigCommand   `cmd:"" help:"Manage configuration"`

	Debug bool `name:"debug" help:"Enable debug logging"`
}

const banner = `
  __ _  ___   __ _ _ __
 / _' |/ _ \ / _' | '_ \
| (_| | (_) | (_| | |_) |
 \__, |\___/ \__,_| .__/
 |___/            |_|

Goal-Oriented Action Planning with an OODA execution loop
`

func main() {
	log.SetLevel(log.InfoLevel)

	ctx := kong.Parse(&CLI,
		kong.Name("goap"),
		kong.Description("GOAP - plan action sequences toward a goal and execute them, replanning when the world drifts."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: false,
			Summary: true,
		}),
	)

	if CLI.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if ctx.Command() == "" {
		fmt.Print(banner)
		fmt.Println("Quick start:")
		fmt.Println("  $ goap config init                 # Create config file")
		fmt.Println("  $ goap doctor                      # Verify setup")
		fmt.Println("  $ goap validate scenarios/deploy.yaml")
		fmt.Println("  $ goap plan scenarios/deploy.yaml")
		fmt.Println("  $ goap run scenarios/deploy.yaml")
		fmt.Println()
		fmt.Println("Run 'goap --help' for all commands")
		os.Exit(0)
	}

	err := ctx.Run()
	if err != nil {
		log.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
