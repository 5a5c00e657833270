package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	douyin "github.com/zlowly/AsyncDouyinLiveWebFetcher"
	"github.com/zlowly/AsyncDouyinLiveWebFetcher/sign"
)

func run(ctx context.Context, cfg *config, webRID, suffix string) error {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()

	eventPath := filepath.Join(cfg.EventLogDir, "events_"+suffix+".log")
	eventFile, err := os.OpenFile(eventPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open event log")
	}
	defer func() { _ = eventFile.Close() }()
	events := zerolog.New(zerolog.MultiLevelWriter(console, eventFile)).
		Level(level).With().Timestamp().Logger()

	signer, err := sign.LoadScript(cfg.SignScript)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("web_rid", webRID).Msg("resolving room")
	room, err := douyin.NewRoom(ctx, webRID,
		douyin.WithSigner(signer),
		douyin.WithUserAgent(cfg.UserAgent),
		douyin.WithRoomLogger(logger),
	)
	if err != nil {
		return err
	}

	live, err := room.IsLive(ctx)
	if err != nil {
		return err
	}
	if !live {
		logger.Warn().Str("room_id", room.ID).Msg("room is not currently live")
	}

	sess, err := room.Connect(ctx,
		douyin.WithLogger(logger),
		douyin.WithEventLog(events),
		douyin.WithHeartbeatInterval(cfg.HeartbeatInterval),
	)
	if err != nil {
		return err
	}
	logger.Info().Str("room_id", room.ID).Str("events", eventPath).Msg("connected")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := sess.Close(); err != nil {
			return err
		}
	case <-sess.Done():
		logger.Info().Msg("session ended")
	}
	return nil
}
