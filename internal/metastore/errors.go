// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package metastore

import (
	"fmt"
	"runtime"
	"strings"
)

// wrap annotates err with the calling function's name and any extra
// context strings. A nil err wraps to nil.
func wrap(err error, context ...string) error {
	if err == nil {
		return nil
	}

	prefix := "error"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if details := runtime.FuncForPC(pc); details != nil {
			prefix = strings.ToLower(details.Name())
			if dot := strings.LastIndex(prefix, "."); dot > 0 {
				prefix = prefix[dot+1:]
			}
		}
	}

	if len(context) > 0 {
		for i := range context {
			context[i] = strings.TrimSpace(context[i])
		}
		return fmt.Errorf("%s (%s): %w", prefix, strings.Join(context, ", "), err)
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
