package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	camus "github.com/hugolhafner/go-camus"
)

type globalOpts struct {
	Config string `long:"config" short:"c" env:"CAMUS_CONFIG" default:"camus.yaml" description:"Path to the YAML configuration"`
}

type versionCmd struct{}

func (versionCmd) Execute([]string) error {
	fmt.Println(camus.Version)
	return nil
}

func main() {
	var global globalOpts
	parser := flags.NewParser(&global, flags.Default)
	parser.LongDescription = `camus pulls Kafka partitions into a durable store in batches.

	Each run consumes one work unit: a JSON list of partition offset ranges. Output files are
	promoted into time-partitioned directories and the resume offsets are checkpointed for the
	next run. Settings are read from the YAML file and CAMUS__ prefixed environment variables.
	`

	mustAdd(parser, "run", "Run one work unit", "", &runCmd{global: &global})
	mustAdd(parser, "offsets", "Print a task's checkpoints as the next run's requests", "", &offsetsCmd{global: &global})
	mustAdd(parser, "version", "Print the version", "", &versionCmd{})

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAdd(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(fmt.Sprintf("adding command %s: %v", name, err))
	}
}
