// Copyright (C) 2024 The dg-transform Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracer

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/chrisliu/dg-transform/core/log"
	"github.com/pkg/errors"
)

func envU64(getenv func(string) string, key string) (uint64, error) {
	s := getenv(key)
	if s == "" {
		return 0, errors.Errorf("Missing dynamic inst id for %v", key)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "Parsing %v", key)
	}
	return v, nil
}

func envPath(getenv func(string) string, key string) (string, error) {
	s := getenv(key)
	if s == "" {
		return "", errors.Errorf("Missing file path for %v", key)
	}
	return s, nil
}

// traceIntervals derives the trace intervals from the environment:
// DG_INST_START / DG_INST_MAX yield a single interval, otherwise
// DG_SIMPOINT_PATH yields one interval per line, otherwise the whole run is
// a single open interval.
func traceIntervals(ctx context.Context, getenv func(string) string) ([]instInterval, error) {
	startStr := getenv(EnvInstStart)
	maxStr := getenv(EnvInstMax)
	if startStr != "" || maxStr != "" {
		var start uint64
		if startStr != "" {
			v, err := strconv.ParseUint(startStr, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Parsing %v", EnvInstStart)
			}
			start = v
		}
		if maxStr != "" {
			max, err := strconv.ParseUint(maxStr, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Parsing %v", EnvInstMax)
			}
			return []instInterval{closedInterval(start, start+max-1)}, nil
		}
		return []instInterval{openInterval(start)}, nil
	}

	if path := getenv(EnvSimPointPath); path != "" {
		return readSimPoints(ctx, path)
	}

	return []instInterval{openInterval(0)}, nil
}

// readSimPoints parses a SimPoints file: one interval per non-empty line,
// each line three comma-separated integers "start,end,weight". The third
// integer is ignored.
func readSimPoints(ctx context.Context, path string) ([]instInterval, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Opening SimPoints file %v", path)
	}
	defer file.Close()

	var intervals []instInterval
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, errors.Errorf("Invalid SimPoints file format: %q", line)
		}
		ints := make([]uint64, len(fields))
		for idx, f := range fields {
			v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Invalid SimPoints file format: %q", line)
			}
			ints[idx] = v
		}
		log.I(ctx, "%s", line)
		intervals = append(intervals, closedInterval(ints[0], ints[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "Reading SimPoints file %v", path)
	}
	return intervals, nil
}
