// Copyright 2026 Stigmer Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beadbox/bead/box"
	"github.com/beadbox/bead/search"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	boxDir    string
	boxName   string
	networkFS bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "beadbox",
	Short:   "beadbox - inspect and query a BEAD box directory",
	Long:    `beadbox opens a directory as a Box, fronted by its SQLite index, and lets you list and store frozen computations without writing SQL.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&boxDir, "dir", ".", "box directory")
	rootCmd.PersistentFlags().StringVar(&boxName, "name", "default", "logical box name")
	rootCmd.PersistentFlags().BoolVar(&networkFS, "network-fs", false, "disable WAL journaling for network filesystems")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(versionCmd)
}

func openBox(ctx context.Context) (*box.Box, error) {
	return box.Open(ctx, afero.NewOsFs(), boxName, boxDir, box.Options{NetworkFS: networkFS})
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every bead in the box",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBox(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		recs, err := search.OnBox(b).All(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Println(box.Describe(r))
		}
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store ARCHIVE_PATH",
	Short: "Store a .bead archive into the box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBox(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		rec, err := b.Store(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(box.Describe(rec))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("beadbox %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}
