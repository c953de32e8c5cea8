package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lgc202/anthropic-kit/version"
)

func newVersionCommand() *cobra.Command {
	var outputFormat string

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch outputFormat {
			case "json":
				s, err := info.ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, s)
			case "short":
				fmt.Fprintln(out, info.ShortString())
			case "text", "":
				fmt.Fprintln(out, info.Text())
			default:
				return fmt.Errorf("unknown output format %q", outputFormat)
			}
			return nil
		},
	}

	versionCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "输出格式 (text, json, short)")
	return versionCmd
}
