// Command vaasctl scans files and URLs against a VaaS-compatible server and
// prints a verdict per argument.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/gdata/vaas-go/pkg/vaas"
)

func main() {
	var (
		files      fileList
		urls       fileList
		clientID   = flag.String("client-id", os.Getenv("CLIENT_ID"), "OAuth2 client id (or $CLIENT_ID)")
		secret     = flag.String("client-secret", os.Getenv("CLIENT_SECRET"), "OAuth2 client secret (or $CLIENT_SECRET)")
		serverURL  = flag.String("server", "", "override the default VaaS server URL")
		useFrame   = flag.Bool("frame-transport", false, "use the persistent frame-channel transport instead of HTTP")
		verboseLog = flag.Bool("v", false, "enable verbose (debug-level) logging")
	)
	flag.Var(&files, "files", "comma-separated list of files to scan")
	flag.Var(&urls, "urls", "comma-separated list of URLs to scan")
	flag.Parse()

	if len(files) == 0 && len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "vaasctl: at least one of -files or -urls is required")
		flag.Usage()
		os.Exit(2)
	}
	if *clientID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "vaasctl: -client-id and -client-secret are required")
		os.Exit(2)
	}

	zapCfg := zap.NewProductionConfig()
	if *verboseLog {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLog, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := zapr.NewLogger(zapLog)

	cred := vaas.NewClientCredential(*clientID, vaas.NewRedactedSecret(*secret), "")
	builder := vaas.NewBuilder(cred).WithLogger(log)
	if *serverURL != "" {
		builder = builder.WithServerURL(*serverURL)
	}
	if *useFrame {
		builder = builder.WithFrameTransport()
	}

	ctx := context.Background()
	conn, err := builder.Build(ctx)
	if err != nil {
		log.Error(err, "failed to connect")
		os.Exit(1)
	}
	defer conn.Close()

	exitCode := 0
	if len(files) > 0 {
		results := conn.ForFileList(ctx, files)
		for i, r := range results {
			if !printResult(files[i], r) {
				exitCode = 1
			}
		}
	}
	if len(urls) > 0 {
		results := conn.ForURLList(ctx, urls)
		for i, r := range results {
			if !printResult(urls[i], r) {
				exitCode = 1
			}
		}
	}
	os.Exit(exitCode)
}

// printResult prints one scan result and reports whether it succeeded.
func printResult(subject string, r vaas.Result) bool {
	if r.Err != nil {
		fmt.Printf("%s -> %v\n", subject, r.Err)
		return false
	}
	if r.Verdict.Detection != "" {
		fmt.Printf("%s -> %s %s\n", subject, r.Verdict.Verdict, r.Verdict.Detection)
		return true
	}
	fmt.Printf("%s -> %s\n", subject, r.Verdict.Verdict)
	return true
}

// fileList is a flag.Value accumulating comma-separated arguments across
// repeated -files/-urls flags.
type fileList []string

func (f *fileList) String() string {
	return strings.Join(*f, ",")
}

func (f *fileList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}
