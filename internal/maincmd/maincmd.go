// Package maincmd implements the luavm command: decode a binary program
// image and either execute it or dump its contents.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/luavm/internal/dump"
	"github.com/mna/luavm/internal/luaconfig"
	"github.com/mna/luavm/lang/bytecode"
	"github.com/mna/luavm/lang/machine"
)

const binName = "luavm"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <path>
       %[1]s -h|--help
       %[1]s -v|--version

Virtual machine for the register-based binary program image format.

<path> is a binary program image to load and, by default, execute.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -d --dump                 Dump the decoded program instead of
                                 running it.
       --format=<name>           Dump format: "text" (default) or "yaml".
                                 Only meaningful with --dump.
       --ver=<version>           Expected image version: "5.1" (default)
                                 or "5.3". Overrides LUAVM_VERSION.

The following environment variables are also honored:
       LUAVM_VERSION             Default for --ver.
       LUAVM_MAX_STEPS           Dispatch-loop step budget; 0 (default)
                                 means unbounded.
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool   `flag:"h,help"`
	Version bool   `flag:"v,version"`
	Dump    bool   `flag:"d,dump"`
	Format  string `flag:"format"`
	Ver     string `flag:"ver"`

	args []string
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) != 1 {
		return errors.New("exactly one program image path is required")
	}
	if c.Format != "" && c.Format != "text" && c.Format != "yaml" {
		return fmt.Errorf("invalid --format: %s", c.Format)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   true,
		EnvPrefix: "LUAVM_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	cfg, err := luaconfig.Load()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return mainer.Failure
	}
	if c.Ver != "" {
		cfg.Version = c.Ver
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := run(ctx, stdio, c.args[0], cfg, c.Dump, c.Format); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", binName, err)
		return mainer.Failure
	}
	return mainer.Success
}

func run(ctx context.Context, stdio mainer.Stdio, path string, cfg luaconfig.Config, doDump bool, format string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	verByte, err := luaconfig.VersionByte(cfg.Version)
	if err != nil {
		return err
	}

	prog, err := bytecode.Decode(data, verByte)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if doDump {
		if format == "yaml" {
			return dump.YAML(stdio.Stdout, prog)
		}
		return dump.Text(stdio.Stdout, prog)
	}

	it := &machine.Interpreter{
		Stdout:   stdio.Stdout,
		MaxSteps: cfg.MaxSteps,
	}
	return it.Run(ctx, prog)
}
