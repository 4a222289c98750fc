// Command chronostorectl is an interactive shell for inspecting a running
// chronostored instance over its monitoring endpoint (spec.md §6 ambient
// stats). Grounded on scm/prompt.go's Repl: a chzyer/readline loop with a
// colored prompt, ^C/EOF handling, and an anti-panic recover wrapper per
// command, reworked from evaluating Scheme expressions to dispatching a
// handful of named commands against an HTTP client.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
)

const (
	newprompt = "\033[32mchronostorectl>\033[0m "
	errprompt = "\033[31m!\033[0m "
)

// snapshot mirrors internal/monitor.Snapshot's wire shape; duplicated here
// rather than imported so this command depends only on the HTTP contract,
// not on the daemon's internal packages.
type snapshot struct {
	QueueDepths []int  `json:"queue_depths"`
	ActiveIndex int    `json:"active_volume"`
	Rotations   uint64 `json:"rotations"`
	SeriesCount int    `json:"series_count"`
}

func main() {
	flags := pflag.NewFlagSet("chronostorectl", pflag.ContinueOnError)
	addr := flags.String("monitor-addr", "localhost:8585", "chronostored monitoring endpoint")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	c := &client{base: "http://" + *addr, http: &http.Client{Timeout: 5 * time.Second}}
	repl(c)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) stats() (snapshot, error) {
	resp, err := c.http.Get(c.base + "/stats")
	if err != nil {
		return snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return snapshot{}, fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	var s snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return snapshot{}, err
	}
	return s, nil
}

func repl(c *client) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".chronostorectl-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dispatch(c, line)
	}
}

// dispatch runs one command, recovering from any panic the way Repl's
// anti-panic wrapper does, so a bad response or closed connection drops
// back to the prompt instead of killing the shell.
func dispatch(c *client, line string) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("%spanic: %v\n", errprompt, r)
		}
	}()

	switch fields := strings.Fields(line); fields[0] {
	case "stats":
		printStats(c)
	case "help":
		printHelp()
	case "exit", "quit":
		os.Exit(0)
	default:
		fmt.Printf("%sunknown command %q (try \"help\")\n", errprompt, fields[0])
	}
}

func printStats(c *client) {
	s, err := c.stats()
	if err != nil {
		fmt.Printf("%s%s\n", errprompt, err)
		return
	}
	fmt.Printf("active_volume=%d rotations=%d series_count=%d queue_depths=%v\n",
		s.ActiveIndex, s.Rotations, s.SeriesCount, s.QueueDepths)
}

func printHelp() {
	fmt.Println("commands: stats, help, exit")
}
