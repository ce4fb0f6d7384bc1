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
		server  *relay.Server
	}
)

func main() {
	cl := cmdline.NewCommandLine()

	cl.RegisterCommand(
		mainHandler,
		"~ [<string-port>]?Runs the relay server console. Specify <port> to listen on; the default is 5555.",
		"[--trace]?Enable trace logging",
		"[--endpoint <string-interface>]?Specify the network interface to listen on. The default is all network interfaces.",
		"[--ws-port <int-wsport>]?Also accept WebSocket clients at /ws on this port.",
		"[--no-rate-limit]?Do not limit the rate of messages from each client.",
	)

	args := os.Args[1:] // exclude executable name in os.Args[0]
	err := cl.Process(args)
	if err != nil {
		cl.Help(err, "relayd", args)
	}
}

func mainHandler(args cmdline.Values) error {
	eng := mainEngine{args: args}

	eng.start()
	eng.server.WaitForTermination()

	os.Exit(0)
	return nil
}

func (eng *mainEngine) start() {
	eng.l = lane.NewLogLane(context.Background())

	isTrace := eng.args["--trace"].(bool)
	if !isTrace {
		eng.l.SetLogLevel(lane.LogLevelInfo)
	}

	cfg := &relay.ServerConfig{
		Endpoint: eng.args["interface"].(string),
		Port:     relay.PortOrDefault(eng.args["port"].(string)),
		WsPort:   eng.args["wsport"].(int),
	}
	if eng.args["--no-rate-limit"].(bool) {
		cfg.RateLimit = relay.NoRateLimit()
	}

	eng.console = relay.NewConsole(os.Stdin, os.Stdout)
	eng.server = relay.NewServer(eng.l, eng.console, cfg)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("\n\nRelay server console\n\nLines starting with %c are directives; anything else is broadcast\n\n", relay.DirectivePrefix)
	}

	if err := eng.server.Listen(); err != nil {
		eng.console.Display("ERROR - Could not listen for clients!")
	}

	eng.killSignalMonitor()
	eng.consoleMonitor()
}

func (eng *mainEngine) killSignalMonitor() {
	// register a graceful termination handler
	sigs := make(chan os.Signal, 10)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		sig := <-sigs
		eng.l.Infof("termination %s signaled", sig)
		eng.server.Quit()
	}()
}

func (eng *mainEngine) consoleMonitor() {
	// Upon termination triggered another way, this goroutine will leak. Go
	// does not give a reasonable way to cancel a blocking I/O call.
	go func() {
		if err := eng.console.Accept(eng.l, eng.server); err != nil {
			fmt.Println("Unexpected error while reading from console!")
		}
	}()
}
