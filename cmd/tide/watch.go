package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

var watch = cli.Command{
	Name: "watch",
	Usage: "stream the balance and tx notifications pushed by the daemon, " +
		"interrupt to stop",
	Action: watchAction,
}

func watchAction(ctx *cli.Context) error {
	addr, err := getServerAddr()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr, nil)
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %v", addr, err)
	}
	defer conn.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		printJSON(data)
	}
}
