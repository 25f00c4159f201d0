package main

import (
	"context"
	"os"

	"github.com/metalagman/ttdr/internal/app"
	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/logging"
)

func openApp(ctx context.Context) (*app.App, config.Config, string, func(), error) {
	cfg, err := loadGlobalConfig()
	if err != nil {
		return nil, config.Config{}, "", func() {}, err
	}
	dir, err := resolveStateDir()
	if err != nil {
		return nil, config.Config{}, "", func() {}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, config.Config{}, "", func() {}, err
	}
	a, err := app.New(ctx, cfg, dir, logging.Component("app"))
	if err != nil {
		return nil, config.Config{}, "", func() {}, err
	}
	return a, cfg, dir, func() { _ = a.Close(context.Background()) }, nil
}

func openStorage(ctx context.Context) (*app.App, string, func(), error) {
	dir, err := resolveStateDir()
	if err != nil {
		return nil, "", func() {}, err
	}
	a, err := app.NewStorage(ctx, dir, logging.Component("app"))
	if err != nil {
		return nil, "", func() {}, err
	}
	return a, dir, func() { _ = a.Close(context.Background()) }, nil
}
