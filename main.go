/*
Plays the animation stacks of a rig description, deforming its skinned meshes
every frame, and logs what was drawn when it stops.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-skinning/engine"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/testbed"
)

func main() {
	configPath := flag.String("config", "assets/config.toml", "path of the application config")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath)
	if err != nil {
		core.LogFatal(err.Error())
	}

	tb, err := testbed.NewTestGame(config)
	if err != nil {
		core.LogFatal(err.Error())
	}

	engine, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := engine.Initialize(); err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop, shutdown happens once Run has returned
	go func() {
		<-sigCh
		engine.Stop()
	}()

	runErr := engine.Run()
	if err := engine.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
