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
	"os"
	"path/filepath"
	"testing"

	"github.com/chrisliu/dg-transform/core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestTraceIntervalsStartAndMax(t *testing.T) {
	got, err := traceIntervals(log.Testing(t), env(map[string]string{
		EnvInstStart: "100",
		EnvInstMax:   "50",
	}))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{closedInterval(100, 149)}, got)
}

func TestTraceIntervalsMaxOnly(t *testing.T) {
	got, err := traceIntervals(log.Testing(t), env(map[string]string{
		EnvInstMax: "50",
	}))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{closedInterval(0, 49)}, got)
}

func TestTraceIntervalsStartOnly(t *testing.T) {
	got, err := traceIntervals(log.Testing(t), env(map[string]string{
		EnvInstStart: "100",
	}))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{openInterval(100)}, got)
}

func TestTraceIntervalsDefault(t *testing.T) {
	got, err := traceIntervals(log.Testing(t), env(nil))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{openInterval(0)}, got)
}

func TestTraceIntervalsStartBeatsSimPoints(t *testing.T) {
	// DG_INST_START takes precedence over DG_SIMPOINT_PATH.
	got, err := traceIntervals(log.Testing(t), env(map[string]string{
		EnvInstStart:    "7",
		EnvSimPointPath: "should-not-be-read",
	}))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{openInterval(7)}, got)
}

func TestTraceIntervalsSimPointsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simpoints.txt")
	require.NoError(t, os.WriteFile(path, []byte("100,199,0\n\n500,599,1\n"), 0666))

	got, err := traceIntervals(log.Testing(t), env(map[string]string{
		EnvSimPointPath: path,
	}))
	require.NoError(t, err)
	assert.Equal(t, []instInterval{
		closedInterval(100, 199),
		closedInterval(500, 599),
	}, got)
}

func TestTraceIntervalsSimPointsBadLines(t *testing.T) {
	for _, body := range []string{
		"100,199\n",
		"100,199,0,5\n",
		"a,b,c\n",
	} {
		path := filepath.Join(t.TempDir(), "simpoints.txt")
		require.NoError(t, os.WriteFile(path, []byte(body), 0666))
		_, err := traceIntervals(log.Testing(t), env(map[string]string{
			EnvSimPointPath: path,
		}))
		assert.Error(t, err, "%q", body)
	}
}

func TestInstIntervalContains(t *testing.T) {
	closed := closedInterval(10, 20)
	assert.False(t, closed.contains(9))
	assert.True(t, closed.contains(10))
	assert.True(t, closed.contains(20))
	assert.False(t, closed.contains(21))

	open := openInterval(10)
	assert.False(t, open.contains(9))
	assert.True(t, open.contains(10))
	assert.True(t, open.contains(1<<40))
}

func TestIntervalIterPaths(t *testing.T) {
	it := &intervalIter{path: filepath.Join("a", "b", "trace.pb")}
	assert.Equal(t, filepath.Join("a", "b", "trace.0.pb"), it.curPath())
	it.idx = 3
	assert.Equal(t, filepath.Join("a", "b", "trace.3.pb"), it.curPath())

	it = &intervalIter{path: "trace"}
	assert.Equal(t, "trace.0", it.curPath())
}

func TestEnvU64(t *testing.T) {
	get := env(map[string]string{"GOOD": "42", "BAD": "x"})
	v, err := envU64(get, "GOOD")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = envU64(get, "BAD")
	assert.Error(t, err)
	_, err = envU64(get, "MISSING")
	assert.Error(t, err)
}
