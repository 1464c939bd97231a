package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/bootstrap"
	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/providers/factory"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(context.Background(), os.Args[1:], os.Stdout, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Fatal().Err(err).Msg("smsctl failed")
	}
}

type options struct {
	driver     string
	to         string
	message    string
	queue      bool
	queueName  string
	connection string
	timeout    time.Duration
	retry      int
	retryDelay time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("smsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.driver, "driver", "", "driver name (default: SMS_DRIVER)")
	fs.StringVar(&opts.to, "to", "", "comma separated recipient numbers")
	fs.StringVar(&opts.message, "message", "", "message body")
	fs.BoolVar(&opts.queue, "queue", false, "queue the dispatch instead of sending it")
	fs.StringVar(&opts.queueName, "queue-name", "", "queue name (default: SMS_QUEUE_NAME)")
	fs.StringVar(&opts.connection, "connection", "", "queue connection (default: SMS_QUEUE_CONNECTION)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout override")
	fs.IntVar(&opts.retry, "retry", -1, "extra attempts override")
	fs.DurationVar(&opts.retryDelay, "retry-delay", -1, "delay between attempts override")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o options) recipients() []string {
	var out []string
	for _, part := range strings.Split(o.to, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (o options) dispatchOptions() []dispatch.Option {
	var out []dispatch.Option
	if o.timeout > 0 {
		out = append(out, dispatch.WithTimeout(o.timeout))
	}
	if o.retry >= 0 {
		out = append(out, dispatch.WithRetry(o.retry))
	}
	if o.retryDelay >= 0 {
		out = append(out, dispatch.WithRetryDelay(o.retryDelay))
	}
	return out
}

func run(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var registry *factory.Registry
	if opts.queue {
		infra, err := bootstrap.Open(ctx, cfg, logger, "bdsms-cli")
		if err != nil {
			return err
		}
		defer infra.Close()
		registry = infra.Registry()
	} else {
		registry = factory.New(cfg.SMS, cfg.Request.Policy(), logger)
	}

	sms, err := registry.SMS(opts.driver, opts.dispatchOptions()...)
	if err != nil {
		return err
	}
	sms.To(opts.recipients()...).Message(opts.message)

	var result any
	if opts.queue {
		result, err = sms.Queue(ctx, dispatch.OnQueue(opts.queueName), dispatch.OnConnection(opts.connection))
	} else {
		result, err = sms.Send(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", sms.Driver().Name(), err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
