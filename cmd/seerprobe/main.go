// Command seerprobe queries a running seer. It is the checker a test harness
// runs against the service:
//
//	seerprobe -query state
//	seerprobe -query answer -url http://127.0.0.1:8000
//	seerprobe -want Available
//	seerprobe -wait Available -timeout 40s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"tools.zach/dev/seer/internal/probe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seerprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", probe.DefaultBaseURL, "Base URL of the seer REST API")
	query := fs.String("query", "state", "What to read: state, answer or index")
	want := fs.String("want", "", "Exit 1 unless the reported state equals this")
	wait := fs.String("wait", "", "Poll until the seer reports this state, then run the query")
	timeout := fs.Duration("timeout", 10*time.Second, "Overall deadline")
	interval := fs.Duration("interval", 500*time.Millisecond, "Poll interval for -wait")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := probe.New(*url)

	if *wait != "" {
		if err := c.WaitForState(ctx, *wait, *interval); err != nil {
			fmt.Fprintf(stderr, "seerprobe: %v\n", err)
			return 1
		}
	}

	var (
		out any
		err error
	)
	switch *query {
	case "state":
		out, err = c.ServiceState(ctx)
	case "answer":
		out, err = c.Answer(ctx)
	case "index":
		out, err = c.PerspectiveIndex(ctx)
	default:
		fmt.Fprintf(stderr, "seerprobe: unknown query %q\n", *query)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "seerprobe: %v\n", err)
		if probe.IsUnavailable(err) {
			return 3
		}
		return 1
	}
	fmt.Fprintln(stdout, out)
	if *want != "" && *query == "state" && out != *want {
		fmt.Fprintf(stderr, "seerprobe: state is %v, want %s\n", out, *want)
		return 1
	}
	return 0
}
