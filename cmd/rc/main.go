// Command rc is the coordinator client: it submits compile commands,
// queries coordinator status, and can order a coordinator to exit.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/codegangsta/cli"

	"github.com/rosrad/rtags/internal/httpapi"
	"github.com/rosrad/rtags/internal/unit"
	"github.com/rosrad/rtags/internal/wire"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "rc"
	app.Usage = "rdm coordinator client"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "H",
			Value: "127.0.0.1:0",
			Usage: "coordinator TCP address",
		},
		cli.StringFlag{
			Name:  "http",
			Value: "127.0.0.1:7878",
			Usage: "coordinator debug HTTP address",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "submit",
			Usage: "submit a compile command",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "project", Usage: "project root path"},
				cli.StringFlag{Name: "path", Usage: "source file path"},
				cli.StringFlag{Name: "compiler", Value: "cc", Usage: "compiler invoked"},
				cli.StringFlag{Name: "args", Usage: "space-separated compiler arguments"},
				cli.StringFlag{Name: "working-dir", Usage: "working directory the command runs in"},
			},
			Action: func(c *cli.Context) {
				if err := submit(c); err != nil {
					log.Fatal(err)
				}
			},
		},
		{
			Name:  "status",
			Usage: "show project and job status",
			Action: func(c *cli.Context) {
				if err := status(c); err != nil {
					log.Fatal(err)
				}
			},
		},
		{
			Name:  "exit",
			Usage: "order the coordinator (and its whole chain) to exit",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "code", Value: 0, Usage: "exit code to propagate"},
			},
			Action: func(c *cli.Context) {
				if err := sendExit(c); err != nil {
					log.Fatal(err)
				}
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dial(addr string) (*wire.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rc: dial %s: %w", addr, err)
	}
	return &wire.Conn{Conn: conn}, nil
}

func submit(c *cli.Context) error {
	project := c.String("project")
	path := c.String("path")
	if project == "" || path == "" {
		cli.ShowCommandHelp(c, "submit")
		return fmt.Errorf("rc: --project and --path are required")
	}

	var args []string
	if raw := c.String("args"); raw != "" {
		args = strings.Fields(raw)
	}

	wc, err := dial(c.GlobalString("H"))
	if err != nil {
		return err
	}
	defer wc.Close()

	src := unit.Source{
		Path:        path,
		Compiler:    c.String("compiler"),
		Args:        args,
		WorkingDir:  c.String("working-dir"),
		ProjectRoot: project,
	}

	if err := sendMessage(wc, &wire.ClientMessage{}); err != nil {
		return err
	}
	if err := sendMessage(wc, &wire.SubmitMessage{Project: project, Source: src}); err != nil {
		return err
	}
	fmt.Printf("submitted %s\n", src.String())
	return nil
}

func sendExit(c *cli.Context) error {
	wc, err := dial(c.GlobalString("H"))
	if err != nil {
		return err
	}
	defer wc.Close()
	return sendMessage(wc, &wire.ExitMessage{ExitCode: c.Int("code"), Forward: true})
}

func sendMessage(wc *wire.Conn, m wire.Message) error {
	payload, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("rc: encode %s: %w", m.Kind(), err)
	}
	if err := wc.Send(payload); err != nil {
		return fmt.Errorf("rc: send %s: %w", m.Kind(), err)
	}
	return nil
}

func status(c *cli.Context) error {
	base := "http://" + c.GlobalString("http")

	var projects []httpapi.ProjectStatus
	if err := getJSON(base+"/status", &projects); err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Printf("Project: %s\tState: %s\tFiles: %d\n", p.Name, p.State, p.FileCount)
	}

	var jobs httpapi.JobsSnapshot
	if err := getJSON(base+"/jobs", &jobs); err != nil {
		return err
	}
	fmt.Printf("Pending: %d\tProcessing: %d\tLocal: %d\n",
		len(jobs.Pending), len(jobs.Processing), len(jobs.Local))
	return nil
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("rc: GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rc: read %s: %w", url, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("rc: decode %s: %w", url, err)
	}
	return nil
}
