// Command audioinfo probes an audio file with ffprobe and prints the
// detected metadata as JSON. Ops helper for debugging inputs the pipeline
// rejects.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/keweikao/sales-ai-automation-V2/internal/audio"
)

func main() {
	var input string
	flag.StringVar(&input, "input", "", "Audio file to probe")
	flag.Parse()

	if input == "" && flag.NArg() > 0 {
		input = flag.Arg(0)
	}
	if input == "" {
		fmt.Fprintln(os.Stderr, "usage: audioinfo [--input] FILE")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	ref, err := audio.NewFFmpeg(quiet).Probe(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
