package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "iplookup",
		Short:        "Resolve IP addresses to countries with the IP2Location LITE database",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "config file")

	loadStorage := func() (*Config, *ResolverStorage, error) {
		logrus.SetLevel(logrus.InfoLevel)
		conf, err := ParseConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		logrus.SetLevel(conf.Level())

		storage, err := NewResolverStorage(conf, BuildRangeDataSource(conf))
		if err != nil {
			return nil, nil, err
		}
		return conf, storage, nil
	}

	root.AddCommand(newServeCommand(loadStorage), newLookupCommand(loadStorage), newBatchCommand(loadStorage))

	return root
}

type storageLoader func() (*Config, *ResolverStorage, error)

func newServeCommand(load storageLoader) *cobra.Command {
	var pprofListen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lookups over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, storage, err := load()
			if err != nil {
				return err
			}

			if pprofListen != "" {
				go servePprof(pprofListen)
			}

			stop := make(chan struct{})
			defer close(stop)

			if conf.Watch {
				if err := WatchSnapshot(conf.CSVPath, storage, stop); err != nil {
					return err
				}
			}
			go storage.RunUpdates(stop)

			//todo: add graceful shutdown
			return NewServer(conf, storage).Run()
		},
	}
	cmd.Flags().StringVar(&pprofListen, "pprof", "localhost:12951", "pprof listen address, empty to disable")

	return cmd
}

// servePprof blocks serving the default mux, which carries the pprof handlers.
func servePprof(listen string) {
	if err := http.ListenAndServe(listen, nil); err != nil {
		logrus.Warnf("pprof server on %s stopped: %v", listen, err)
	}
}

func newLookupCommand(load storageLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup IP...",
		Short: "Print the label of each address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage, err := load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, label := range storage.ResolveBatch(args) {
				fmt.Fprintf(out, "%s\t%s\n", args[i], label)
			}
			return nil
		},
	}
}

func newBatchCommand(load storageLoader) *cobra.Command {
	var (
		column  string
		inPath  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Append a Country column to a CSV table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage, err := load()
			if err != nil {
				return err
			}

			in, closeIn, err := openInput(inPath, cmd)
			if err != nil {
				return err
			}
			defer closeIn()

			out, closeOut, err := openOutput(outPath, cmd)
			if err != nil {
				return err
			}
			defer closeOut()

			return annotateTable(in, out, column, storage)
		},
	}
	cmd.Flags().StringVar(&column, "column", "IP", "column holding the addresses")
	cmd.Flags().StringVar(&inPath, "in", "-", "input CSV, - for stdin")
	cmd.Flags().StringVar(&outPath, "out", "-", "output CSV, - for stdout")

	return cmd
}
