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

package log

import "context"

type handlerKeyTy struct{}
type severityKeyTy struct{}
type tagKeyTy struct{}

var (
	handlerKey  handlerKeyTy
	severityKey severityKeyTy
	tagKey      tagKeyTy
)

// PutHandler returns a context with the given Handler set on it.
func PutHandler(ctx context.Context, h Handler) context.Context {
	return context.WithValue(ctx, handlerKey, h)
}

// GetHandler gets the Handler stored on the given context, or nil.
func GetHandler(ctx context.Context) Handler {
	if h, ok := ctx.Value(handlerKey).(Handler); ok {
		return h
	}
	return nil
}

// PutSeverity returns a context with the minimum shown severity set on it.
func PutSeverity(ctx context.Context, s Severity) context.Context {
	return context.WithValue(ctx, severityKey, s)
}

// GetSeverity gets the minimum shown severity stored on the given context.
func GetSeverity(ctx context.Context) Severity {
	if s, ok := ctx.Value(severityKey).(Severity); ok {
		return s
	}
	return Debug
}

// PutTag returns a context with the given tag set on it.
func PutTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tagKey, tag)
}

// GetTag gets the tag stored on the given context, or the empty string.
func GetTag(ctx context.Context) string {
	if t, ok := ctx.Value(tagKey).(string); ok {
		return t
	}
	return ""
}
