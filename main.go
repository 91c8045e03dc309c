package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/hass-mqtt-bridge/platform-harness/framework"
	"github.com/hass-mqtt-bridge/platform-harness/framework/harness"
	"github.com/hass-mqtt-bridge/platform-harness/framework/helpers"
)

var statusOKColor = color.New(color.FgGreen)   //nolint:gochecknoglobals
var statusFailColor = color.New(color.FgRed)   //nolint:gochecknoglobals
var statusInfoColor = color.New(color.Faint)   //nolint:gochecknoglobals

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	if err := run(params); err != nil {
		statusFailColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(params commandParams) error {
	descriptor, err := harness.LoadEnvironmentDescriptor(params.envFile)
	if err != nil {
		return err
	}

	logger := framework.NullLogger()
	if params.debug {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}

	runtime, err := harness.NewDockerRuntime(logger)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.Close() }()

	stack, err := harness.NewStack(descriptor, runtime, harness.OptLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting environment %q (%d services)\n", descriptor.Name, len(descriptor.Services))
	started := time.Now()
	if err := stack.Up(ctx); err != nil {
		return err
	}
	statusOKColor.Printf("All services ready in %s\n", time.Since(started).Round(time.Millisecond))

	runErr := observe(ctx, params, stack)

	// teardown is not tied to ctx: an interrupt must not leave containers behind
	downErr := stack.Down(context.Background(), harness.DownOptions{RemoveVolumes: params.removeVolumes})
	return errors.Join(runErr, downErr)
}

func observe(ctx context.Context, params commandParams, stack *harness.Stack) error {
	if params.expectEntities > 0 {
		count, err := helpers.Poll(ctx,
			func() int { return stack.CountRegisteredEntities(params.entityPattern) },
			func(n int) bool { return n >= params.expectEntities },
			params.pollInterval, params.pollTimeout,
			fmt.Sprintf("at least %d entities matching %s", params.expectEntities, params.entityPattern))
		if err != nil {
			for _, id := range stack.RegisteredEntities() {
				statusInfoColor.Printf("  registered: %s\n", id)
			}
			return err
		}
		statusOKColor.Printf("Found %d registered entities\n", count)
	}

	if params.holdOpen {
		fmt.Println("Environment is up; press Ctrl-C to shut it down")
		<-ctx.Done()
		fmt.Println()
		fmt.Println("Shutting down")
	}
	return nil
}
