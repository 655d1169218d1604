// Copyright (C) 2024 SUSE LLC. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fileguard

import "strings"

// tokenizedPath is the output of tokenize: an absolute/relative flag plus an
// ordered sequence of non-empty path components. Consecutive separators have
// been collapsed and "." components elided; ".." components are preserved
// for the Walker to resolve against the directories it actually descends
// into (tokenize never touches the filesystem, so it cannot know what ".."
// resolves to).
type tokenizedPath struct {
	Absolute      bool
	Components    []string
	TrailingSlash bool
}

// tokenize splits path into its components. A nil path is InvalidArgument
// (mirrors the C source's NULL-path check); an empty string is NotFound,
// since "" never refers to anything on a filesystem. A lone separator is a
// valid absolute path with zero components (it resolves to the root
// directory).
func tokenize(path []byte) (tokenizedPath, error) {
	if path == nil {
		return tokenizedPath{}, newError("tokenize", "", KindInvalidArgument, nil)
	}
	s := string(path)
	if s == "" {
		return tokenizedPath{}, newError("tokenize", "", KindNotFound, nil)
	}

	absolute := strings.HasPrefix(s, "/")
	trailingSlash := len(s) > 1 && strings.HasSuffix(s, "/")

	var components []string
	for _, part := range strings.Split(s, "/") {
		switch part {
		case "", ".":
			continue
		default:
			components = append(components, part)
		}
	}

	return tokenizedPath{
		Absolute:      absolute,
		Components:    components,
		TrailingSlash: trailingSlash,
	}, nil
}

// tokenizeString is a convenience wrapper for callers that already hold a
// string (the common case for this package's public API).
func tokenizeString(path string) (tokenizedPath, error) {
	if path == "" {
		return tokenizedPath{}, newError("tokenize", "", KindNotFound, nil)
	}
	return tokenize([]byte(path))
}
