package main

import (
	"fmt"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/util"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// parseArgs parses key=value arguments. Values that are valid json are decoded, anything else is
// kept as a string.
func parseArgs(args []string) (map[string]any, error) {
	values := map[string]any{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.New(errors.Validation, "expected key=value, got %q", arg)
		}
		values[key] = parseValue(raw)
	}
	return values, nil
}

func parseValue(raw string) any {
	if !gjson.Valid(raw) {
		return raw
	}
	return gjson.Parse(raw).Value()
}

func render(cmd *cobra.Command, output string) error {
	asYAML, _ := cmd.Flags().GetBool("yaml")
	if asYAML {
		bits, err := util.JSONToYAML([]byte(output))
		if err != nil {
			return errors.Wrap(err, errors.Internal, "failed to render yaml")
		}
		output = string(bits)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(output))
	return err
}
