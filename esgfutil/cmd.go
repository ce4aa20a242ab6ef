/*
Copyright © 2026 the esgf authors.
This file is part of esgf.

esgf is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

esgf is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with esgf.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package esgfutil implements the esgf command line interface.
package esgfutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bopen/esgf"
	"github.com/bopen/esgf/catalog"
	"github.com/bopen/esgf/dataset"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to esgf.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "esgpull_path",
			usage: `
              esgpull_path is the local installation directory. Downloaded
              files are stored under its data directory and recorded in
              db/esgf.db. The default is $ESGPULL_HOME or ~/.esgpull.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "index_node",
			usage: `
              index_node is the host name of the index node to search. The
              default is $ESGPULL_INDEX_NODE or esgf.ceda.ac.uk.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "query_file",
			usage: `
              query_file is a TOML file of facets to search for, for example
              variable_id = ["tas", "pr"]. Facets given as arguments
              replace those in the file.`,
			shorthand:  "q",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "retries",
			usage: `
              retries is the number of times failed searches and downloads
              are retried.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "search_cache",
			usage: `
              search_cache is a directory where search responses are kept
              between runs. Responses are not kept if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log_level",
			usage: `
              log_level is the logging level: debug, info, warn or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "check_files",
			usage: `
              check_files specifies whether to verify the checksums of
              downloaded files.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags(), openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "verify_ssl",
			usage: `
              verify_ssl specifies whether to verify the TLS certificates
              of data nodes.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags(), openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "show_progress",
			usage: `
              show_progress specifies whether to log download progress.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{downloadCmd.Flags(), openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "concat_dims",
			usage: `
              concat_dims are dataset id facets, such as experiment_id, that
              become dimensions along which datasets are combined.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "drop_variables",
			usage: `
              drop_variables are variables to leave out.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "download",
			usage: `
              download specifies whether to download files before opening
              them. Otherwise they are read remotely.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "sel",
			usage: `
              sel selects labels along dimensions, for example lat=45.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{openCmd.Flags(), saveCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the netCDF file to save to: a local path or a
              file://, gs:// or s3:// URL.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{saveCmd.Flags()},
		},
		{
			name: "dataset_id",
			usage: `
              dataset_id lists the files recorded for one dataset instead
              of a summary of all datasets.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{catalogCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ESGF")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(searchCmd)
	Root.AddCommand(downloadCmd)
	Root.AddCommand(openCmd)
	Root.AddCommand(saveCmd)
	Root.AddCommand(catalogCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the logging level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("esgf: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("esgf: %v", err)
	}
	logrus.SetLevel(level)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "esgf",
	Short: "Search, download and open ESGF climate data.",
	Long: `esgf finds the files of the Earth System Grid Federation that match
a selection of facets, downloads them and opens them as a single dataset.

Facets are given as arguments of the form facet=value1,value2, for example

	esgf open source_id=EC-Earth3-CC experiment_id=ssp245,ssp585 variable_id=tas \
		--concat_dims experiment_id

or in a TOML file given with --query_file. A value of * matches anything.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ESGF_var' where 'var' is the
name of the variable to be set.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of esgf.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("esgf v%s\n", esgf.Version)
	},
	DisableAutoGenTag: true,
}

var searchCmd = &cobra.Command{
	Use:   "search facet=value...",
	Short: "List the matching files",
	Long: `search lists the latest versions of the files matching the selection
on all federated index nodes, without downloading them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(args)
		if err != nil {
			return err
		}
		files, err := c.Files(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATASET\tFILE\tSIZE")
		var total uint64
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.DatasetID, f.Filename, humanize.Bytes(uint64(f.Size)))
			total += uint64(f.Size)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		ids, _ := c.DatasetIDs(cmd.Context())
		cmd.Printf("%d files in %d datasets, %s\n", len(files), len(ids), humanize.Bytes(total))
		return nil
	},
	DisableAutoGenTag: true,
}

var downloadCmd = &cobra.Command{
	Use:   "download facet=value...",
	Short: "Download the matching files",
	Long: `download downloads the matching files that are not already present
into the installation directory and records them in its catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(args)
		if err != nil {
			return err
		}
		files, err := c.Download(cmd.Context(), Cfg.GetBool("show_progress"))
		cmd.Printf("downloaded %d files\n", len(files))
		return err
	},
	DisableAutoGenTag: true,
}

var openCmd = &cobra.Command{
	Use:   "open facet=value...",
	Short: "Describe the combined dataset",
	Long: `open opens the matching files as a single dataset and prints a summary
of its dimensions, variables and attributes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openDataset(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), ds.String())
		return nil
	},
	DisableAutoGenTag: true,
}

var saveCmd = &cobra.Command{
	Use:   "save facet=value...",
	Short: "Save the combined dataset",
	Long: `save opens the matching files as a single dataset, loads it and writes it
to the netCDF file given by --output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := checkOutputFile(cmd.Context(), os.ExpandEnv(Cfg.GetString("output")))
		if err != nil {
			return err
		}
		ds, err := openDataset(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := saveDataset(cmd.Context(), ds, output); err != nil {
			return err
		}
		cmd.Printf("saved %s\n", output)
		return nil
	},
	DisableAutoGenTag: true,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List downloaded files",
	Long: `catalog lists the datasets recorded in the installation directory, or
the files of one dataset if --dataset_id is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Install(installPath())
		if err != nil {
			return err
		}
		defer cat.Close()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		if id := Cfg.GetString("dataset_id"); id != "" {
			records, err := cat.List(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "FILE\tSIZE\tSTATUS\tPATH")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Filename, humanize.Bytes(uint64(r.Size)), r.Status, r.Path)
			}
			return w.Flush()
		}
		summary, err := cat.Datasets(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "DATASET\tFILES\tSIZE")
		for _, s := range summary {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.DatasetID, s.Files, humanize.Bytes(uint64(s.Size)))
		}
		return w.Flush()
	},
	DisableAutoGenTag: true,
}

func installPath() string {
	if p := os.ExpandEnv(Cfg.GetString("esgpull_path")); p != "" {
		return p
	}
	return esgf.DefaultPath()
}

// newClient returns a client for the selection given by args and the
// query file.
func newClient(args []string) (*esgf.Client, error) {
	sel, err := selection(args)
	if err != nil {
		return nil, err
	}
	c := esgf.NewClient(sel, installPath(), Cfg.GetString("index_node"))
	c.Retries = uint64(Cfg.GetInt("retries"))
	c.CheckFiles = Cfg.GetBool("check_files")
	c.VerifySSL = Cfg.GetBool("verify_ssl")
	c.SearchCacheDir = os.ExpandEnv(Cfg.GetString("search_cache"))
	c.Log = logrus.StandardLogger()
	return c, nil
}

// openDataset opens the selection given by args through the esgf
// backend.
func openDataset(ctx context.Context, args []string) (*dataset.Dataset, error) {
	sel, err := selection(args)
	if err != nil {
		return nil, err
	}
	labels, err := parseSel(Cfg.GetStringSlice("sel"))
	if err != nil {
		return nil, err
	}
	opts := dataset.Options{
		"esgpull_path":   installPath(),
		"index_node":     Cfg.GetString("index_node"),
		"retries":        Cfg.GetInt("retries"),
		"check_files":    Cfg.GetBool("check_files"),
		"verify_ssl":     Cfg.GetBool("verify_ssl"),
		"concat_dims":    Cfg.GetStringSlice("concat_dims"),
		"drop_variables": Cfg.GetStringSlice("drop_variables"),
		"download":       Cfg.GetBool("download"),
		"show_progress":  Cfg.GetBool("show_progress"),
		"sel":            labels,
		"search_cache":   os.ExpandEnv(Cfg.GetString("search_cache")),
	}
	logrus.WithFields(logrus.Fields{"selection": sel.String(), "concat_dims": strings.Join(Cfg.GetStringSlice("concat_dims"), ",")}).
		Debug("esgf: opening dataset")
	return dataset.Open(ctx, sel, "esgf", opts)
}
