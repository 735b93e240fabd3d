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

package trace

import "flag"

// UIDFile is the canonical identifier sidecar path. SimPointPass writes it;
// InstTracePass reads it. Pass structs default to this flag when their own
// UIDFile field is empty.
var UIDFile = flag.String("dg-llvm-uid-file", "", "path of the canonical identifier sidecar")
