// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/IvanTran-2001/Instagram-Logging/internal/config"
	"github.com/IvanTran-2001/Instagram-Logging/internal/exports"
	"github.com/IvanTran-2001/Instagram-Logging/internal/fetcher"
	"github.com/IvanTran-2001/Instagram-Logging/internal/instagram"
	"github.com/IvanTran-2001/Instagram-Logging/internal/logger"
	"github.com/IvanTran-2001/Instagram-Logging/internal/media"
	"github.com/IvanTran-2001/Instagram-Logging/internal/stats"
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
	"github.com/IvanTran-2001/Instagram-Logging/internal/worker"
)

// probeLimit caps how much history probe pulls. It is a connectivity check,
// not a sync.
const probeLimit = 100

func main() {
	name, args := splitArgs(os.Args[1:])

	var err error
	switch name {
	case "sync":
		err = runSync(args)
	case "render":
		err = runRender(args)
	case "probe":
		err = runProbe(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want sync, render or probe)\n", name)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// splitArgs peels the subcommand off the argument list. No subcommand, or a
// leading flag, means sync so a bare invocation works from cron.
func splitArgs(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "sync", args
	}
	return args[0], args[1:]
}

func runSync(args []string) error {
	flags := flag.NewFlagSet("sync", flag.ExitOnError)
	watch := flags.Duration("watch", 0, "keep running and sync again on this interval")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Logger.Level, Pretty: cfg.Logger.Pretty, Dir: cfg.Logger.Dir})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	client, friend, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	conv, err := store.Open(cfg.DataDir, cfg.Friend.Username, log)
	if err != nil {
		return err
	}
	downloader := media.NewDownloader(conv.PhotosDir(), cfg.Media.PhotoTimeout, cfg.Media.VideoTimeout, log)

	if friend.ProfilePicURL != "" {
		if _, err := downloader.SaveAvatar(ctx, friend.ProfilePicURL, conv.Dir); err != nil {
			log.Warn().Err(err).Msg("could not save avatar")
		}
	}

	syncer := fetcher.NewSynchronizer(client, downloader, conv, fetcher.Config{
		BatchSize:       cfg.Fetch.BatchSize,
		MaxBatches:      cfg.Fetch.MaxBatches,
		FirstRunBatches: cfg.Fetch.FirstRunBatches,
		FirstRunLimit:   cfg.Fetch.FirstRunLimit,
		PageDelay:       cfg.Fetch.PageDelay,
		FirstRunDelay:   cfg.Fetch.FirstRunDelay,
		Location:        cfg.Location(),
	}, log)

	runOnce := func(ctx context.Context) error {
		if _, err := syncer.Sync(ctx, friend.PK); err != nil {
			return err
		}
		records, err := conv.Load()
		if err != nil {
			return err
		}
		s := stats.Collect(records)
		log.Info().
			Int("total", s.Total).
			Int("text", s.Text).
			Int("media", s.Media).
			Int("other", s.Other).
			Interface("per_sender", s.PerSender).
			Msg("conversation state")
		return nil
	}

	if err := runOnce(ctx); err != nil {
		return err
	}
	if *watch <= 0 {
		return nil
	}

	w := worker.NewWorker(runOnce, log)
	w.Start(ctx, *watch)
	<-ctx.Done()
	w.Stop()
	return nil
}

func runRender(args []string) error {
	flags := flag.NewFlagSet("render", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadOffline()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Logger.Level, Pretty: cfg.Logger.Pretty, Dir: cfg.Logger.Dir})
	if err != nil {
		return err
	}

	dir := flags.Arg(0)
	switch {
	case dir == "":
		dir, err = exports.FindLatest(cfg.DataDir)
		if err != nil {
			return err
		}
	case strings.HasSuffix(dir, ".json"):
		dir = filepath.Dir(dir)
	}

	conv := &store.Conversation{Dir: dir}
	if _, err := os.Stat(conv.File()); err != nil {
		return fmt.Errorf("no conversation at %v: %w", dir, err)
	}
	records, err := conv.Load()
	if err != nil {
		return err
	}

	path, err := exports.WriteTranscript(dir, records, exports.Options{
		FriendUsername: cfg.Friend.Username,
		SelfID:         cfg.Transcript.SelfID,
		DisplayNames:   cfg.Transcript.DisplayNames,
		Location:       cfg.Location(),
	})
	if err != nil {
		return err
	}

	log.Info().Str("path", path).Int("messages", len(records)).Msg("transcript written")
	return nil
}

// runProbe checks the whole pipeline without touching the conversation
// store: login, friend lookup, thread lookup, a page of history and photo
// downloads into a throwaway folder.
func runProbe(args []string) error {
	flags := flag.NewFlagSet("probe", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Logger.Level, Pretty: cfg.Logger.Pretty, Dir: cfg.Logger.Dir})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	client, friend, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	threadID, err := fetcher.FindThread(ctx, client, friend.PK)
	if err != nil {
		return err
	}

	messages, err := client.DirectThread(ctx, threadID, probeLimit)
	if err != nil {
		return err
	}
	log.Info().Int("messages", len(messages)).Msg("history sample fetched")

	dir := filepath.Join(cfg.DataDir, "test_download_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %v: %w", dir, err)
	}
	downloader := media.NewDownloader(dir, cfg.Media.PhotoTimeout, cfg.Media.VideoTimeout, log)

	found, saved := 0, 0
	for i, msg := range messages {
		if msg.MediaType != instagram.MediaTypePhoto || msg.PhotoURL == "" {
			continue
		}
		found++
		path, err := downloader.FetchPhoto(ctx, msg.PhotoURL, msg.Timestamp, strconv.Itoa(i))
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("photo download failed")
			continue
		}
		saved++
		log.Info().Str("path", path).Msg("photo saved")
	}

	if found == 0 {
		log.Warn().Int("scanned", len(messages)).Msg("no photos in the sampled history")
		return nil
	}
	log.Info().Int("saved", saved).Int("found", found).Str("dir", dir).Msg("probe complete")
	return nil
}

// connect logs in and resolves the friend account both online commands need.
func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*instagram.Client, instagram.User, error) {
	client, err := instagram.New(instagram.Config{
		Username:    cfg.Instagram.Username,
		Password:    cfg.Instagram.Password,
		TOTPSecret:  cfg.Instagram.TOTPSecret,
		Proxy:       cfg.Instagram.Proxy,
		SessionFile: cfg.SessionFile,
		PageDelay:   cfg.Fetch.FirstRunDelay,
	}, log)
	if err != nil {
		return nil, instagram.User{}, err
	}

	if err := client.Login(ctx); err != nil {
		return nil, instagram.User{}, fmt.Errorf("login: %w", err)
	}

	friend, err := client.UserByUsername(ctx, cfg.Friend.Username)
	if err != nil {
		return nil, instagram.User{}, fmt.Errorf("resolving %v: %w", cfg.Friend.Username, err)
	}
	log.Info().Int64("pk", friend.PK).Str("username", friend.Username).Msg("friend resolved")

	return client, friend, nil
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Warn().Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}
