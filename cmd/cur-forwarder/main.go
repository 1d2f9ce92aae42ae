package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kube-reporting/cur-forwarder/pkg/backfill"
	"github.com/kube-reporting/cur-forwarder/pkg/catalog"
	"github.com/kube-reporting/cur-forwarder/pkg/event"
	"github.com/kube-reporting/cur-forwarder/pkg/forwarder"
)

const defaultGlueRegion = "eu-west-1"

var (
	logLevelStr         string
	logFullTimestamp    bool
	logDisableTimestamp bool

	destinationBucket string
	prefixMappingJSON string
	glueDatabase      string
	glueRegion        string
	tableMappingJSON  string

	eventFile     string
	listenAddr    string
	sweepSchedule string
)

var rootCmd = &cobra.Command{
	Use:   "cur-forwarder",
	Short: "forwards AWS Cost and Usage Report files between S3 buckets and keeps Athena partitions pointed at complete snapshots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var handleCmd = &cobra.Command{
	Use:   "handle",
	Short: "process a single event document and print the batch result",
	Run:   runHandle,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP event ingress",
	Run:   runServe,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "create partitions for report data that already exists in the destination bucket",
	Run:   runBackfill,
}

func init() {
	// globally set time to UTC
	time.Local = time.UTC

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevelStr, "log-level", log.InfoLevel.String(), "log level")
	pf.BoolVar(&logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	pf.BoolVar(&logDisableTimestamp, "disable-timestamp", false, "disable timestamp logging")

	pf.StringVar(&destinationBucket, "destination-bucket", "", "bucket receiving forwarded report files")
	pf.StringVar(&prefixMappingJSON, "prefix-mapping", "{}", `JSON object mapping source bucket to {"source_prefix": ..., "destination_prefix": ...}`)
	pf.StringVar(&glueDatabase, "glue-database", "", "Glue database holding the report tables, empty disables partition updates")
	pf.StringVar(&glueRegion, "glue-region", defaultGlueRegion, "AWS region the Glue catalog lives in")
	pf.StringVar(&tableMappingJSON, "table-mapping", "{}", "JSON object mapping destination key prefix to table name, in resolution order")

	handleCmd.Flags().StringVar(&eventFile, "event-file", "-", "file containing the event document, - for stdin")
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address for the event ingress API")
	serveCmd.Flags().StringVar(&sweepSchedule, "sweep-schedule", "", "optional cron schedule for periodic backfill sweeps")

	rootCmd.AddCommand(handleCmd, serveCmd, backfillCmd)
}

func main() {
	rootCmd.ParseFlags(os.Args[1:])

	for _, fs := range []*pflag.FlagSet{rootCmd.PersistentFlags(), handleCmd.Flags(), serveCmd.Flags()} {
		if err := SetFlagsFromEnv(fs, "CUR_FORWARDER"); err != nil {
			log.WithError(err).Fatalf("error setting flags from environment variables: %v", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("error executing command: %v", err)
	}
}

func runHandle(cmd *cobra.Command, args []string) {
	logger := newLogger()
	fwd, err := newForwarder(logger)
	if err != nil {
		logger.WithError(err).Fatal("unable to set up forwarder")
	}

	var raw []byte
	if eventFile == "-" {
		raw, err = ioutil.ReadAll(os.Stdin)
	} else {
		raw, err = ioutil.ReadFile(eventFile)
	}
	if err != nil {
		logger.WithError(err).Fatal("unable to read event document")
	}

	result := event.NewRouter(logger, fwd).HandleEvent(raw)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("unable to marshal batch result")
	}
	fmt.Println(string(out))
}

func runServe(cmd *cobra.Command, args []string) {
	logger := newLogger()
	fwd, err := newForwarder(logger)
	if err != nil {
		logger.WithError(err).Fatal("unable to set up forwarder")
	}

	router := event.NewRouter(logger, fwd)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: event.NewHTTPHandler(logger, router),
	}

	if sweepSchedule != "" {
		sweeper, err := newSweeper(logger)
		if err != nil {
			logger.WithError(err).Fatal("unable to set up backfill sweeper")
		}
		c := cron.New()
		err = c.AddFunc(sweepSchedule, func() {
			if err := sweeper.Run(); err != nil {
				logger.WithError(err).Error("scheduled backfill sweep failed")
			}
		})
		if err != nil {
			logger.WithError(err).Fatalf("invalid --sweep-schedule: %s", sweepSchedule)
		}
		c.Start()
		defer c.Stop()
		logger.Infof("backfill sweep scheduled: %s", sweepSchedule)
	}

	ctx := setupSignals()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("error shutting down event ingress")
		}
	}()

	logger.Infof("event ingress listening on %s", listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("event ingress stopped")
	}
	logger.Infof("cur-forwarder has stopped")
}

func runBackfill(cmd *cobra.Command, args []string) {
	logger := newLogger()
	sweeper, err := newSweeper(logger)
	if err != nil {
		logger.WithError(err).Fatal("unable to set up backfill sweeper")
	}
	if err := sweeper.Run(); err != nil {
		logger.WithError(err).Fatal("backfill sweep failed")
	}
	logger.Infof("backfill sweep complete")
}

func loadConfig() (forwarder.Config, error) {
	cfg := forwarder.Config{
		DestinationBucket: destinationBucket,
	}
	if err := json.Unmarshal([]byte(prefixMappingJSON), &cfg.PrefixMapping); err != nil {
		return cfg, fmt.Errorf("invalid --prefix-mapping: %v", err)
	}
	if err := json.Unmarshal([]byte(tableMappingJSON), &cfg.TableBindings); err != nil {
		return cfg, fmt.Errorf("invalid --table-mapping: %v", err)
	}
	return cfg, nil
}

func newForwarder(logger log.FieldLogger) (*forwarder.Forwarder, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	sess := session.Must(session.NewSession())
	s3Client := s3.New(sess)

	// the Glue client is built once per process for the catalog's region
	// and injected; partition updates are disabled without a database
	var repointer forwarder.Repointer
	if glueDatabase != "" {
		glueClient := glue.New(sess, aws.NewConfig().WithRegion(glueRegion))
		repointer = catalog.NewRepointer(logger, glueClient, glueDatabase)
	}

	return forwarder.New(logger, s3Client, cfg, repointer)
}

func newSweeper(logger log.FieldLogger) (*backfill.Sweeper, error) {
	if glueDatabase == "" {
		return nil, fmt.Errorf("--glue-database is required for backfill sweeps")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	sess := session.Must(session.NewSession())
	s3Client := s3.New(sess, aws.NewConfig().WithRegion(glueRegion))
	glueClient := glue.New(sess, aws.NewConfig().WithRegion(glueRegion))
	repointer := catalog.NewRepointer(logger, glueClient, glueDatabase)

	return backfill.NewSweeper(logger, s3Client, repointer, backfill.Config{
		Bucket:        cfg.DestinationBucket,
		TableBindings: cfg.TableBindings,
	})
}

// SetFlagsFromEnv parses all registered flags in the given flagset,
// and if they are not already set it attempts to set their values from
// environment variables. Environment variables take the name of the flag but
// are UPPERCASE, and any dashes are replaced by underscores. Environment
// variables additionally are prefixed by the given string followed by
// an underscore. For example, if prefix=PREFIX: some-flag => PREFIX_SOME_FLAG
func SetFlagsFromEnv(fs *pflag.FlagSet, prefix string) (err error) {
	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if !alreadySet[f.Name] {
			key := prefix + "_" + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
			val := os.Getenv(key)
			if val != "" {
				if serr := fs.Set(f.Name, val); serr != nil {
					err = fmt.Errorf("invalid value %q for %s: %v", val, key, serr)
				}
			}
		}
	})
	return err
}

func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Infof("got signal %s, performing shutdown", sig)
		cancel()
	}()
	return ctx
}

func newLogger() log.FieldLogger {
	// flags are parsed by now, so the formatter picks up their values
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    logFullTimestamp,
		DisableTimestamp: logDisableTimestamp,
	})
	logger := log.WithFields(log.Fields{
		"app": "cur-forwarder",
	})
	logLevel, err := log.ParseLevel(logLevelStr)
	if err != nil {
		logger.WithError(err).Fatalf("invalid log level: %s", logLevelStr)
	}
	logger.Logger.Level = logLevel
	return logger
}
