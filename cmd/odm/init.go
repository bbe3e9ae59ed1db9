package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/util"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

func initCmd() *cobra.Command {
	var (
		path        string
		provider    string
		storagePath string
		mongoURL    string
		database    string
		logLevel    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a new config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := sjson.Set("{}", "storage.provider", provider)
			if err != nil {
				return err
			}
			switch provider {
			case "mongodb":
				if config, err = sjson.Set(config, "storage.params.url", mongoURL); err == nil {
					config, err = sjson.Set(config, "storage.params.database", database)
				}
			default:
				config, err = sjson.Set(config, "storage.params.storage_path", storagePath)
			}
			if err != nil {
				return err
			}
			if config, err = sjson.Set(config, "log_level", logLevel); err != nil {
				return err
			}
			bits, err := util.JSONToYAML([]byte(config))
			if err != nil {
				return errors.Wrap(err, errors.Internal, "failed to render config")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to create config directory")
			}
			if err := os.WriteFile(path, bits, 0644); err != nil {
				return errors.Wrap(err, errors.Internal, "failed to write config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "new config created: %v\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "odm.yaml", "path to the config file")
	cmd.Flags().StringVar(&provider, "provider", "badger", "storage provider (badger, mongodb)")
	cmd.Flags().StringVar(&storagePath, "storage-path", "./tmp", "badger storage directory")
	cmd.Flags().StringVar(&mongoURL, "mongo-url", "mongodb://localhost:27017", "mongodb server url")
	cmd.Flags().StringVar(&database, "database", "odm", "mongodb database")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
