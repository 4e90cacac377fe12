/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

const logDate = `2006-01-02T15:04:05.000-07:00`

func newLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}
