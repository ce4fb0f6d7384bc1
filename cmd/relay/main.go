package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jimsnab/go-cmdline"
	"github.com/jimsnab/go-lane"
	"github.com/jimsnab/go-relay"
	"golang.org/x/term"
)

type (
	mainEngine struct {
		args    cmdline.Values
		l       lane.Lane
		console *relay.Console
		client  *relay.Client
	}
)

func main() {
	cl := cmdline.NewCommandLine()

	cl.RegisterCommand(
		mainHandler,
		"~ [<string-port>]?Runs the relay client console. Specify <port> to connect to; the default is 5555.",
		"[--trace]?Enable trace logging",
		"[--host <string-host>]?Specify the server host. The default is localhost.",
	)

	args := os.Args[1:] // exclude executable name in os.Args[0]
	err := cl.Process(args)
	if err != nil {
		cl.Help(err, "relay", args)
	}
}

func mainHandler(args cmdline.Values) error {
	eng := mainEngine{args: args}

	if err := eng.start(); err != nil {
		fmt.Println("Error: Can't setup connection! Terminating client.")
		os.Exit(1)
	}
	eng.client.WaitForTermination()

	os.Exit(0)
	return nil
}

func (eng *mainEngine) start() (err error) {
	eng.l = lane.NewLogLane(context.Background())

	isTrace := eng.args["--trace"].(bool)
	if !isTrace {
		eng.l.SetLogLevel(lane.LogLevelInfo)
	}

	cfg := &relay.ClientConfig{
		Host: eng.args["host"].(string),
		Port: relay.PortOrDefault(eng.args["port"].(string)),
	}

	eng.console = relay.NewConsole(os.Stdin, os.Stdout)
	eng.client, err = relay.NewClient(eng.l, eng.console, cfg)
	if err != nil {
		eng.l.Errorf("%s", err)
		return
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("\n\nConnected to %s:%d\n\nLines starting with %c are directives; anything else is sent to the server\n\n",
			eng.client.Host(), eng.client.Port(), relay.DirectivePrefix)
	}

	eng.killSignalMonitor()
	eng.consoleMonitor()
	return
}

func (eng *mainEngine) killSignalMonitor() {
	sigs := make(chan os.Signal, 10)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		sig := <-sigs
		eng.l.Infof("termination %s signaled", sig)
		eng.client.Quit()
	}()
}

func (eng *mainEngine) consoleMonitor() {
	// leaks on termination, as a blocking console read cannot be cancelled
	go func() {
		if err := eng.console.Accept(eng.l, eng.client); err != nil {
			fmt.Println("Unexpected error while reading from console!")
		}
	}()
}
