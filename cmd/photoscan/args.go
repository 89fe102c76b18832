package main

import (
	"strings"

	"github.com/urfave/cli/v2"
)

// hoistFlags moves command flags that follow positional arguments in front
// of them, so "enrich <root> --concurrency 4" parses like
// "enrich --concurrency 4 <root>". urfave/cli stops reading flags at the
// first positional argument. Everything after "--" stays positional.
func hoistFlags(app *cli.App, args []string) []string {
	if len(args) < 2 {
		return args
	}
	i := skipFlags(args, 1, app.Flags)
	if i >= len(args) {
		return args
	}
	cmd := app.Command(args[i])
	if cmd == nil {
		return args
	}

	out := append([]string{}, args[:i+1]...)
	var positional []string
	rest := args[i+1:]
	for j := 0; j < len(rest); j++ {
		arg := rest[j]
		if arg == "--" {
			positional = append(positional, rest[j:]...)
			break
		}
		if !isFlag(arg) {
			positional = append(positional, arg)
			continue
		}
		out = append(out, arg)
		if takesValue(cmd.Flags, arg) && j+1 < len(rest) {
			j++
			out = append(out, rest[j])
		}
	}
	return append(out, positional...)
}

// skipFlags returns the index of the first argument at or after start that
// is neither a flag nor a flag value.
func skipFlags(args []string, start int, flags []cli.Flag) int {
	i := start
	for i < len(args) && isFlag(args[i]) && args[i] != "--" {
		if takesValue(flags, args[i]) {
			i++
		}
		i++
	}
	return i
}

func isFlag(arg string) bool {
	return len(arg) > 1 && arg[0] == '-'
}

// takesValue reports whether arg names a known flag whose value is the
// next argument.
func takesValue(flags []cli.Flag, arg string) bool {
	name := strings.TrimLeft(arg, "-")
	if strings.Contains(name, "=") {
		return false
	}
	for _, f := range flags {
		for _, n := range f.Names() {
			if n != name {
				continue
			}
			_, isBool := f.(*cli.BoolFlag)
			return !isBool
		}
	}
	return false
}
