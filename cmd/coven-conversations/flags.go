// ABOUTME: Minimal flag parsing for subcommands
// ABOUTME: Accepts --name value, --name=value, and bare boolean switches

package main

import (
	"fmt"
	"strings"
	"time"
)

// flags holds parsed subcommand flags by name (without dashes).
type flags map[string]string

// parseFlags parses args against the allowed value flags and boolean switches.
func parseFlags(args []string, valued []string, switches []string) (flags, error) {
	isValued := make(map[string]bool, len(valued))
	for _, name := range valued {
		isValued[name] = true
	}
	isSwitch := make(map[string]bool, len(switches))
	for _, name := range switches {
		isSwitch[name] = true
	}

	out := make(flags)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")

		switch {
		case isSwitch[name]:
			if hasValue {
				return nil, fmt.Errorf("--%s does not take a value", name)
			}
			out[name] = "true"
		case isValued[name]:
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("--%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			out[name] = value
		default:
			return nil, fmt.Errorf("unknown flag: --%s", name)
		}
	}
	return out, nil
}

func (f flags) bool(name string) bool {
	return f[name] == "true"
}

// duration returns the named flag as a duration, or def when unset.
func (f flags) duration(name string, def time.Duration) (time.Duration, error) {
	raw, ok := f[name]
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// require returns the named flag or an error if it is missing or blank.
func (f flags) require(name string) (string, error) {
	v := strings.TrimSpace(f[name])
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
