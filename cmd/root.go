// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wastore/azure-storage-core-go/common"
)

// Version is stamped at build time.
var Version = "0.1.0"

var logLevelRaw string
var logLevel = common.LogInfo
var rawTryTimeoutMinutes float64

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: Version, // will enable the user to see the version info in the standard posix way: --version
	Use:     "stgprobe",
	Short:   rootCmdShortDescription,
	Long:    rootCmdLongDescription,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logLevel.Parse(logLevelRaw)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// replace the word "global" to avoid confusion about scope
	rootCmd.SetUsageTemplate(strings.Replace((&cobra.Command{}).UsageTemplate(), "Global Flags", "Flags Applying to All Commands", -1))

	rootCmd.PersistentFlags().StringVar(&logLevelRaw, "log-level", "INFO", "Define the log verbosity for the console output. Available levels: NONE, ERROR, WARNING, INFO, DEBUG.")
	rootCmd.PersistentFlags().Float64Var(&rawTryTimeoutMinutes, "try-timeout-minutes", 0, "Maximum time allowed for any single attempt of a request, in minutes. Zero selects the service default.")
}
