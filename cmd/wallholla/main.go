// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the wallholla CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koaning/wallholla/cache"
	"github.com/koaning/wallholla/internal/config"
	"github.com/koaning/wallholla/pretrained"
)

const version = "v0.1.0"

var (
	flagVerbose    bool
	flagConfigFile string
)

func main() {
	root := &cobra.Command{
		Use:   "wallholla",
		Short: "Cache pretrained feature activations for image datasets",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A local .env is optional.
			_ = godotenv.Load()
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: env only)")

	root.AddCommand(newCacheCmd(), newBackbonesCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadSettings() (*config.Settings, error) {
	if flagConfigFile != "" {
		return config.LoadFrom(flagConfigFile)
	}
	return config.Load()
}

func newCacheCmd() *cobra.Command {
	var (
		dataset   string
		generator string
		classMode string
		model     string
		nImg      int
		imgSize   string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Build (or reuse) the cached feature archives for a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			size, err := parseImgSize(imgSize)
			if err != nil {
				return err
			}
			trainDir, validDir := settings.Folders(dataset)

			key := cache.Key{
				Dataset:   dataset,
				Generator: generator,
				Model:     model,
				NumImages: nImg,
				ImgSize:   size,
			}
			ds, err := cache.Load(key, cache.Config{
				TrainDir:   trainDir,
				ValidDir:   validDir,
				CacheDir:   settings.PretrainedPath,
				ClassMode:  classMode,
				BatchSize:  batchSize,
				DataFormat: settings.DataFormat,
			})
			if err != nil {
				return err
			}

			fmt.Printf("cached features for %s (%s backbone, %s generator)\n", dataset, model, generator)
			fmt.Printf("  train data   %v\n", ds.TrainData.Shape())
			fmt.Printf("  train labels %v\n", ds.TrainLabels.Shape())
			fmt.Printf("  valid data   %v\n", ds.ValidData.Shape())
			fmt.Printf("  valid labels %v\n", ds.ValidLabels.Shape())
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "catdog", "dataset directory under the base path")
	cmd.Flags().StringVar(&generator, "generator", "random", "augmentation kind: not-random, random or very-random")
	cmd.Flags().StringVar(&classMode, "class-mode", "binary", "label encoding: binary, categorical or sparse")
	cmd.Flags().StringVar(&model, "model", "mobilenet", "pretrained backbone")
	cmd.Flags().IntVar(&nImg, "n-img", 10, "number of images to draw per subset")
	cmd.Flags().StringVar(&imgSize, "img-size", "224x224", "target image size as WIDTHxHEIGHT")
	cmd.Flags().IntVar(&batchSize, "batch-size", 32, "backbone forward batch size")
	return cmd
}

func newBackbonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backbones",
		Short: "List the available pretrained backbones",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range pretrained.Names() {
				fmt.Println(name)
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wallholla %s\n", version)
		},
	}
}

// parseImgSize parses "WIDTHxHEIGHT", e.g. "224x224".
func parseImgSize(s string) ([2]int, error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return [2]int{}, fmt.Errorf("invalid image size %q: expected WIDTHxHEIGHT", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return [2]int{}, fmt.Errorf("invalid image size %q: expected WIDTHxHEIGHT", s)
	}
	return [2]int{w, h}, nil
}
