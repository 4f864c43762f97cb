/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/tomoncle/modelboot"
	"github.com/tomoncle/modelboot/database"
	"github.com/tomoncle/modelboot/utils"
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type summary struct {
	Name   string                 `json:"name"`
	Type   string                 `json:"type"`
	Models []string               `json:"models"`
	Health *database.HealthStatus `json:"health"`
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("modelboot", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", utils.EnvDefaultString("MODELBOOT_CONFIG", "configs/modelboot.yaml"), "Path to the bootstrap configuration file.")
	envFile := fs.String("env-file", ".env", "Optional .env file loaded before the configuration.")
	logLevel := fs.String("log-level", utils.EnvDefaultString("LOG_LEVEL", "info"), "Log level: debug, info, warn, error.")
	logFormat := fs.String("log-format", utils.EnvDefaultString("CONSOLE_LOG_FORMAT", "text"), "Log format: text or json.")
	timeout := fs.Duration("timeout", utils.EnvDefaultDuration("MODELBOOT_TIMEOUT", time.Minute), "Upper bound for the whole bootstrap.")
	keepOpen := fs.Bool("keep-open", false, "Keep running until interrupted instead of closing the connections.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, msg: err.Error()}
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &exitError{code: 2, msg: fmt.Sprintf("load %s: %v", *envFile, err)}
	}
	utils.ConfigureConsoleLogFormat(*logFormat)
	utils.ConfigureLogLevel(*logLevel)

	cfg, err := database.LoadConfigFile(*configPath)
	if err != nil {
		return &exitError{code: 2, msg: err.Error()}
	}

	host := modelboot.NewMemoryHost()
	plugin := modelboot.NewPlugin()
	if cfg.Namespace != "" {
		plugin.Namespace = cfg.Namespace
	}

	runCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	var bootErr error
	plugin.Register(runCtx, host, modelboot.Options(cfg.Connections), func(err error) { bootErr = err })

	store := host.Store(plugin.Namespace)
	defer func() {
		for _, name := range store.Names() {
			if reg, ok := store.Registry(name); ok {
				_ = reg.Connection().Close()
			}
		}
	}()
	if bootErr != nil {
		return &exitError{code: 1, msg: bootErr.Error()}
	}

	summaries := make([]summary, 0, len(store.Names()))
	for _, name := range store.Names() {
		reg, _ := store.Registry(name)
		summaries = append(summaries, summary{
			Name:   name,
			Type:   reg.Connection().Config().Type,
			Models: reg.Models().Names(),
			Health: reg.Connection().HealthCheck(ctx),
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return err
	}

	if *keepOpen {
		<-ctx.Done()
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}
