package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"
)

type commandParams struct {
	envFile        string
	debug          bool
	removeVolumes  bool
	holdOpen       bool
	expectEntities int
	expectPattern  string
	pollTimeout    time.Duration
	pollInterval   time.Duration

	entityPattern *regexp.Regexp
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.envFile, "env", "testdata/environment.yaml", "path of the environment descriptor file")
	fs.BoolVar(&c.debug, "debug", false, "echo service logs to the console")
	fs.BoolVar(&c.removeVolumes, "remove-volumes", false, "also remove anonymous volumes on teardown")
	fs.BoolVar(&c.holdOpen, "hold", false, "keep the environment running until interrupted")
	fs.IntVar(&c.expectEntities, "expect-entities", 0,
		"wait until at least this many matching entities are registered before declaring success")
	fs.StringVar(&c.expectPattern, "expect-pattern", `^sensor\.rika_`,
		"regex selecting which registered entities to count")
	fs.DurationVar(&c.pollTimeout, "timeout", time.Minute, "how long to wait for the expected entities")
	fs.DurationVar(&c.pollInterval, "interval", time.Millisecond*500, "how often to re-check the expected entities")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	pattern, err := regexp.Compile(c.expectPattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -expect-pattern: %v\n", err)
		fs.Usage()
		return false
	}
	c.entityPattern = pattern
	return true
}
