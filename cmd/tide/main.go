package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

var (
	tideDataDir = btcutil.AppDataDir("tide", false)
	statePath   = path.Join(tideDataDir, "state.json")
)

const callTimeout = 30 * time.Second

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "tide CLI"
	app.Usage = "Command line interface for the tided daemon"
	app.Commands = append(
		app.Commands,
		&config,
		&balance,
		&transactions,
		&address,
		&createtx,
		&broadcast,
		&resync,
		&status,
		&watch,
		&genseed,
		&encrypt,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, err
	}

	return data, nil
}

func setState(data map[string]string) error {
	if _, err := os.Stat(tideDataDir); os.IsNotExist(err) {
		if err := os.Mkdir(tideDataDir, os.ModeDir|0755); err != nil {
			return err
		}
	}

	currentData, _ := getState()
	mergedData := merge(currentData, data)

	jsonString, err := json.Marshal(mergedData)
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, jsonString, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func merge(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

func getServerAddr() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	addr, ok := state["rpcserver"]
	if !ok {
		return "", errors.New("set rpcserver with `config set rpcserver`")
	}
	return addr, nil
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// callRPC sends one request to the daemon WebSocket API and waits for the
// matching response, skipping the notification frames pushed in between.
func callRPC(method string, params interface{}) (json.RawMessage, error) {
	addr, err := getServerAddr()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %v", addr, err)
	}
	defer conn.Close()

	const requestID uint64 = 1
	frame := map[string]interface{}{"id": requestID, "method": method}
	if params != nil {
		frame["params"] = params
	}
	if err := conn.WriteJSON(frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(callTimeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		var resp struct {
			ID     uint64          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *rpcError       `json:"error"`
		}
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, err
		}
		if resp.ID != requestID {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "\t"); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[tide] %v\n", err)
	}
	os.Exit(1)
}
