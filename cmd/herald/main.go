package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/app"
	"herald/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		envPath string
	)
	root := &cobra.Command{
		Use:           "herald",
		Short:         "Scheduled Discord message dispatcher with quizzes and polls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(envPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file loaded before the config")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect and dispatch scheduled items (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the config and catalogs without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(cmd, cfgPath)
		},
	})
	return root
}

func run(cfgPath string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopFatalError
	select {
	case s := <-sigs:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return err
	}
	return nil
}

func validate(cmd *cobra.Command, cfgPath string) error {
	problems, err := app.Check(cmd.Context(), cfgPath)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "config:", err)
		return err
	}
	for _, p := range problems {
		fmt.Fprintln(cmd.ErrOrStderr(), "catalog:", p)
	}
	if len(problems) > 0 {
		return errors.New("catalog problems found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
