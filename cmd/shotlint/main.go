/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"shotlint/internal/crash"
	"shotlint/internal/telemetry"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	code := func() int {
		defer crash.RecoverFunc(a.workspace)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.execute(ctx, os.Args[1:])
	}()
	telemetry.Close()
	os.Exit(code)
}
