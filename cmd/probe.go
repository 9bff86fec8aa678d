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
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wastore/azure-storage-core-go/common"
	"github.com/wastore/azure-storage-core-go/cred"
	"github.com/wastore/azure-storage-core-go/engine"
)

type rawProbeCmdArgs struct {
	secondary        string
	offset           int64
	count            int64
	outputFile       string
	checkMd5         string
	maxRetries       int32
	maxExecutionMins float64
	preferSecondary  bool
	probesInParallel int
}

var raw rawProbeCmdArgs

// cookedProbeCmdArgs is the validated form the worker goroutines consume.
type cookedProbeCmdArgs struct {
	secondary      *url.URL
	hashValidation common.HashValidationOption
	options        engine.RequestOptions
	sinkPath       string
}

func (r rawProbeCmdArgs) cook() (cookedProbeCmdArgs, error) {
	cooked := cookedProbeCmdArgs{sinkPath: r.outputFile}

	if r.secondary != "" {
		u, err := url.Parse(r.secondary)
		if err != nil {
			return cooked, errors.Wrap(err, "the secondary endpoint is not a valid URL")
		}
		cooked.secondary = u
	}

	cooked.hashValidation = common.EHashValidationOption.FailIfDifferent()
	if r.checkMd5 != "" {
		if err := cooked.hashValidation.Parse(r.checkMd5); err != nil {
			return cooked, errors.Wrap(err, "--check-md5 must be one of FailIfDifferent, LogOnly, NoCheck")
		}
	}

	if r.maxRetries < 0 {
		return cooked, errors.New("--max-retries must be >= 0")
	}
	cooked.options = engine.RequestOptions{
		Retry: engine.RetryOptions{
			Policy:     engine.RetryPolicyExponential,
			MaxTries:   r.maxRetries,
			TryTimeout: time.Duration(rawTryTimeoutMinutes * float64(time.Minute)),
		},
		MaxExecutionTime: time.Duration(r.maxExecutionMins * float64(time.Minute)),
		HashValidation:   cooked.hashValidation,
	}
	if cooked.secondary != nil {
		cooked.options.LocationMode = engine.ELocationMode.PrimaryThenSecondary()
		if r.preferSecondary {
			cooked.options.LocationMode = engine.ELocationMode.SecondaryThenPrimary()
		}
	}
	return cooked, nil
}

var probeCmd = &cobra.Command{
	Use:   "probe [urls...]",
	Short: probeCmdShortDescription,
	Long:  probeCmdLongDescription,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cooked, err := raw.cook()
		if err != nil {
			return err
		}
		if cooked.sinkPath != "" && len(args) > 1 {
			return errors.New("--output-file needs exactly one URL")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := common.NewOperationLogger(os.Stderr, logLevel)
		eng := engine.NewExecutionEngine(nil, logger)

		parallelism := raw.probesInParallel
		if parallelism < 1 {
			parallelism = 1
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for _, rawURL := range args {
			rawURL := rawURL
			g.Go(func() error {
				return probeOne(gctx, eng, rawURL, cooked)
			})
		}
		return g.Wait()
	},
}

func probeOne(ctx context.Context, eng *engine.ExecutionEngine, rawURL string, cooked cookedProbeCmdArgs) error {
	primary, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "%q is not a valid URL", rawURL)
	}
	credential, primary, err := credentialFor(primary)
	if err != nil {
		return err
	}

	var secondary *url.URL
	if cooked.secondary != nil {
		// the secondary flag names an endpoint; the resource path comes from the primary
		s := *cooked.secondary
		s.Path = primary.Path
		secondary = &s
	}
	uri, err := engine.NewStorageUri(primary, secondary)
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(cooked.sinkPath)
	if err != nil {
		return err
	}
	defer closeSink()

	opCtx := engine.NewOperationContext()
	opCtx.AddRetryingListener(func(e engine.RetryingEvent) {
		fmt.Fprintf(os.Stderr, "retrying %s: try %d against %v after %v (last status %d, err: %v)\n",
			primary.Host, e.NextTryNumber, e.NextLocation, e.Backoff, e.LastResult.StatusCode, e.LastResult.Err)
	})

	req := engine.NewRangeDownloadRequest(uri, credential, raw.offset, raw.count, sink,
		cooked.hashValidation, eng.Logger())
	result, execErr := engine.Execute(ctx, eng, req, cooked.options, opCtx)

	printAttempts(rawURL, opCtx)
	if execErr != nil {
		return execErr
	}
	fmt.Printf("%s: %d bytes, ETag %s, client time %v\n",
		rawURL, result.BytesWritten, result.ETag, opCtx.ClientTime())
	return nil
}

// credentialFor picks auth from the URL's own SAS token first, then the shared-key
// environment variables, then falls back to anonymous. A SAS-carrying URL is stripped
// of its token; the credential re-applies it at build time.
func credentialFor(u *url.URL) (cred.Credential, *url.URL, error) {
	if u.Query().Get("sig") != "" {
		c, err := cred.NewSASCredential(u.RawQuery)
		if err != nil {
			return nil, nil, err
		}
		bare := *u
		bare.RawQuery = ""
		return c, &bare, nil
	}
	if name, key := os.Getenv("ACCOUNT_NAME"), os.Getenv("ACCOUNT_KEY"); name != "" && key != "" {
		c, err := cred.NewSharedKeyCredential(name, key)
		if err != nil {
			return nil, nil, err
		}
		return c, u, nil
	}
	return cred.NewAnonymousCredential(), u, nil
}

func openSink(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not create the output file")
	}
	return f, func() { _ = f.Close() }, nil
}

func printAttempts(rawURL string, opCtx *engine.OperationContext) {
	for i, r := range opCtx.RequestResults() {
		status := fmt.Sprintf("status %d", r.StatusCode)
		if r.StatusCode == 0 {
			status = "no response"
		}
		outcome := "ok"
		if r.Err != nil {
			outcome = r.Err.Error()
		}
		fmt.Fprintf(os.Stderr, "%s try %d: %s on %v in %v (request id %q): %s\n",
			rawURL, i+1, status, r.TargetLocation, r.Duration(), r.ServiceRequestID, outcome)
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.PersistentFlags().StringVar(&raw.secondary, "secondary", "", "Read-access secondary endpoint to fail over to, e.g. https://myaccount-secondary.blob.core.windows.net.")
	probeCmd.PersistentFlags().BoolVar(&raw.preferSecondary, "prefer-secondary", false, "Send the first attempt to the secondary endpoint instead of the primary.")
	probeCmd.PersistentFlags().Int64Var(&raw.offset, "offset", 0, "Byte offset to start the download at.")
	probeCmd.PersistentFlags().Int64Var(&raw.count, "count", -1, "Number of bytes to download. -1 downloads to the end of the resource.")
	probeCmd.PersistentFlags().StringVar(&raw.outputFile, "output-file", "", "Write the downloaded bytes to this file instead of discarding them. Needs exactly one URL.")
	probeCmd.PersistentFlags().StringVar(&raw.checkMd5, "check-md5", "FailIfDifferent", "Specifies how strictly MD5 hashes should be validated on whole-resource downloads. Available options: NoCheck, LogOnly, FailIfDifferent.")
	probeCmd.PersistentFlags().Int32Var(&raw.maxRetries, "max-retries", 0, "Maximum number of attempts per request. Zero selects the service default.")
	probeCmd.PersistentFlags().Float64Var(&raw.maxExecutionMins, "max-execution-minutes", 0, "Wall-clock budget for each operation across all of its attempts, in minutes. Zero means unbounded.")
	probeCmd.PersistentFlags().IntVar(&raw.probesInParallel, "parallelism", 4, "How many URLs to probe concurrently.")
}
