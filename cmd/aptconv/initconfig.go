package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	cfgpkg "aptconv/internal/config"
	"aptconv/pkg/contract"
)

func newInitConfigCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成默认配置与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initConfig(cmd, dir, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "配置格式 json|yaml|toml")
	return cmd
}

func initConfig(cmd *cobra.Command, dir, format string) error {
	var name string
	switch format {
	case "json", "yaml", "toml":
		name = "config." + format
	default:
		return errors.WithHint(
			errors.Wrapf(contract.ErrInvalidInput, "unknown format %q", format),
			"use json, yaml or toml")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	cfgPath := filepath.Join(dir, name)
	b, err := cfgpkg.MarshalTemplate(cfgPath)
	if err != nil {
		return err
	}
	wrote, err := writeIfAbsent(cfgPath, b)
	if err != nil {
		return err
	}
	report(cmd, cfgPath, wrote)

	envPath := filepath.Join(dir, ".env")
	wrote, err = writeIfAbsent(envPath, []byte(cfgpkg.EnvTemplate()))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
		return nil
	}
	report(cmd, envPath, wrote)
	return nil
}

// writeIfAbsent 以 O_EXCL 创建文件；已存在时返回 (false, nil)。
func writeIfAbsent(path string, b []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "create %s", path)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, errors.Wrapf(err, "write %s", path)
	}
	return true, errors.Wrapf(f.Close(), "close %s", path)
}

func report(cmd *cobra.Command, path string, wrote bool) {
	if wrote {
		fmt.Fprintf(cmd.OutOrStdout(), "已生成 %s\n", path)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已存在，跳过 %s\n", path)
}
