package backend

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/detach/internal/config"
)

// StageCommand is the hidden subcommand the re-executed child runs.
const StageCommand = "stage"

// StageArgs builds the argument list for the detached stage, starting with
// StageCommand.
func StageArgs(req Request) ([]string, error) {
	payload, err := req.Config.Encode()
	if err != nil {
		return nil, err
	}
	args := []string{StageCommand, "--id", req.ID, "--config-json", payload}
	if req.Verbose {
		args = append(args, "--verbose")
	}
	return args, nil
}

// ParseStageArgs parses the arguments following StageCommand.
func ParseStageArgs(args []string) (Request, error) {
	fs := flag.NewFlagSet(StageCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "Launch ID")
	configJSON := fs.String("config-json", "", "Launch config as JSON")
	verbose := fs.Bool("verbose", false, "Log debug diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return Request{}, fmt.Errorf("parsing stage flags: %w", err)
	}

	if *configJSON == "" {
		return Request{}, errors.New("missing --config-json")
	}
	cfg, err := config.Decode(*configJSON)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: *id, Config: cfg, Verbose: *verbose}, nil
}
