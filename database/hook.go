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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// QueryHook prints every failed query of one connection, or every query
// when Verbose is set, coloured by operation.
type QueryHook struct {
	Name    string
	Verbose bool
	Writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(name string, verbose bool) *QueryHook {
	return &QueryHook{Name: name, Verbose: verbose, Writer: os.Stderr}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if !h.Verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		color.CyanString("%15s", "["+h.Name+"]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.Writer, args...)
}

func operationColor(operation string) *color.Color {
	switch operation {
	case "SELECT":
		return color.New(color.FgGreen)
	case "INSERT":
		return color.New(color.FgBlue)
	case "UPDATE":
		return color.New(color.FgYellow)
	case "DELETE":
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed)
	}
}

// slowQueryHook logs successful queries slower than slowTime.
type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.logger == nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
