package main

import (
	"errors"
	"fmt"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration.",
	Args:  cobra.NoArgs,
}

var ConfigShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show all settings as YAML, or the value of given key.",
	Args:  cobra.MaximumNArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		var value any = cfg.AllSettings()
		if len(args) > 0 {
			if !cfg.IsSet(args[0]) {
				return fmt.Errorf("unknown key: %s", args[0])
			}
			value = cfg.Get(args[0])
		}
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		defer func() { err = errors.Join(err, encoder.Close()) }()
		return encoder.Encode(value)
	}),
}

var ConfigSetCmd = &cobra.Command{
	Use:   "set key value",
	Short: "Set a key and save the configuration.",
	Args:  cobra.ExactArgs(2),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		var value any
		if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		cfg.Set(args[0], value)
		ctx, logger := log.MustWithAttrs(cmd.Context(), "key", args[0], "value", value, "path", cfg.Path())
		cmd.SetContext(ctx)
		logger.Info("Saving")
		return cfg.Save("")
	}),
}

var ConfigSaveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Save all settings to given path, or to the configuration file.",
	Args:  cobra.MaximumNArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		path := cfg.Path()
		if len(args) > 0 {
			path = args[0]
		}
		ctx, logger := log.MustWithAttrs(cmd.Context(), "path", path)
		cmd.SetContext(ctx)
		logger.Info("Saving")
		return cfg.Save(path)
	}),
}

func init() {
	ConfigCmd.AddCommand(ConfigShowCmd)
	ConfigCmd.AddCommand(ConfigSetCmd)
	ConfigCmd.AddCommand(ConfigSaveCmd)
	RootCmd.AddCommand(ConfigCmd)
}
