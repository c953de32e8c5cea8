package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lgc202/anthropic-kit/config"
)

type rootOptions struct {
	configPath string
	logLevel   string

	settings config.Settings
	level    slog.LevelVar
	logger   *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "msgctl",
		Short:        "Send Anthropic messages through any supported backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径 (yaml, json, toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")

	rootCmd.AddCommand(newSendCommand(opts))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// load 读取配置并初始化日志，只在需要后端的子命令中调用。
// 指定了配置文件时会监控它，长时间的流式输出中修改 log.level 立即生效。
func (o *rootOptions) load(cmd *cobra.Command) error {
	var opts []config.Option[config.Settings]
	if o.configPath != "" {
		opts = append(opts, config.WithWatch[config.Settings]())
	}
	cfg, err := config.LoadSettings(o.configPath, opts...)
	if err != nil {
		return err
	}
	o.settings = cfg.Get()
	if o.logLevel != "" {
		o.settings.Log.Level = o.logLevel
	}
	o.level.Set(o.settings.Log.SlogLevel())
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: &o.level,
	}))
	cfg.OnChange(o.onSettingsChange)
	return nil
}

// onSettingsChange 重新应用日志级别；--log-level 优先于配置文件
func (o *rootOptions) onSettingsChange(old, new config.Settings) {
	if o.logLevel != "" || old.Log.Level == new.Log.Level {
		return
	}
	o.level.Set(new.Log.SlogLevel())
	o.logger.Info("log level changed", "from", old.Log.Level, "to", new.Log.Level)
}
