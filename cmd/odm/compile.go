package main

import (
	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "query [key=value...]",
		Short:   "compile a dotted filter into a query document",
		Example: `odm query age__gte=18 name__istartswith=ada tags__all='["go"]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseArgs(args)
			if err != nil {
				return err
			}
			compiled, err := query.Compile(nil, values)
			if err != nil {
				return err
			}
			return renderValue(cmd, "query", compiled)
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "update [key=value...]",
		Short:   "compile a dotted update into an update document",
		Example: `odm update set__name=ada inc__visits=1 push__tags=go`,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseArgs(args)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return errors.New(errors.Operation, "No update parameters, would remove data")
			}
			compiled, err := query.CompileUpdate(nil, values)
			if err != nil {
				return err
			}
			return renderValue(cmd, "update", compiled)
		},
	}
}

func renderValue(cmd *cobra.Command, key string, value any) error {
	output, err := sjson.Set("{}", key, value)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to render %s", key)
	}
	return render(cmd, output)
}
