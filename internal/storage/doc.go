/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements workspace persistence and indexing.
// It saves a script file with transactional writes and timestamped backups next to it.
// It also manages the per-workspace embedded SQLite index at <dir>/.shotlint/index.sqlite holding the shot prompt
// search index, zstd-compressed script snapshots and recorded analysis runs.
// The shot index is derived from the script and is rebuildable; snapshots and runs are history.
package storage
