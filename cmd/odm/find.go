package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func findCmd() *cobra.Command {
	var (
		configPath string
		collection string
		orderBy    []string
		only       []string
		skip       int
		limit      int
		count      bool
	)
	cmd := &cobra.Command{
		Use:     "find [key=value...]",
		Short:   "find the documents of a collection matching a dotted filter",
		Example: `odm find --config odm.yaml --collection user age__gte=18 --order-by -age --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			filter, err := parseArgs(args)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return errors.Wrap(err, errors.Validation, "failed to read config %s", configPath)
			}
			cfg, err := odm.LoadConfig(content)
			if err != nil {
				return err
			}
			schema, err := odm.NewSchema(collection, odm.Dynamic(), odm.WithCollection(collection))
			if err != nil {
				return err
			}
			db, err := odm.Open(ctx, cfg, schema)
			if err != nil {
				return err
			}
			defer db.Close(ctx)
			c, err := db.Collection(schema)
			if err != nil {
				return err
			}
			qs := c.Find(filter).OrderBy(orderBy...).Only(only...).Skip(skip).Limit(limit)
			if count {
				n, err := qs.Count(ctx)
				if err != nil {
					return err
				}
				return renderValue(cmd, "count", n)
			}
			cursor, err := qs.Cursor(ctx)
			if err != nil {
				return err
			}
			defer cursor.Close(ctx)
			output := "[]"
			for cursor.Next(ctx) {
				stored, err := cursor.Document().ToStorage()
				if err != nil {
					return err
				}
				bits, err := json.Marshal(stored)
				if err != nil {
					return errors.Wrap(err, errors.Internal, "failed to encode document")
				}
				if output, err = sjson.SetRaw(output, "-1", string(bits)); err != nil {
					return errors.Wrap(err, errors.Internal, "failed to encode document")
				}
			}
			if err := cursor.Err(); err != nil {
				return err
			}
			return render(cmd, output)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "odm.yaml", "path to the config file")
	cmd.Flags().StringVar(&collection, "collection", "", "name of the collection to search")
	cmd.Flags().StringSliceVar(&orderBy, "order-by", nil, "fields to order by, prefixed with '-' for descending")
	cmd.Flags().StringSliceVar(&only, "only", nil, "fields to load")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of matches to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of matches")
	cmd.Flags().BoolVar(&count, "count", false, "print the number of matches")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}
