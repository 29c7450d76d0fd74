// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package main implements a sample plugin executable for the process
// loader. It exports two ImageEffect plugins and one Audio plugin.
//
// Build with:
//
//	go build -o sample.plugin ./plugins/sample
//
// The plugin version can be set at link time:
//
//	go build -ldflags "-X main.version=1.3" -o sample.plugin ./plugins/sample
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/plughost/plughost/pkg/pluginsdk"
)

// version is the major.minor version reported for every plugin.
var version = "1.0"

func parseVersion(v string) (major, minor int, err error) {
	majorStr, minorStr, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, fmt.Errorf("version %q is not major.minor", v)
	}
	if major, err = strconv.Atoi(majorStr); err != nil {
		return 0, 0, fmt.Errorf("major version: %w", err)
	}
	if minor, err = strconv.Atoi(minorStr); err != nil {
		return 0, 0, fmt.Errorf("minor version: %w", err)
	}
	return major, minor, nil
}

func main() {
	major, minor, err := parseVersion(version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	descriptor := func(api, id, label string) pluginsdk.Descriptor {
		return pluginsdk.Descriptor{
			API:          api,
			APIVersion:   1,
			Identifier:   id,
			VersionMajor: major,
			VersionMinor: minor,
			Properties:   map[string]string{"label": label, "built": version},
		}
	}

	pluginsdk.Serve(&pluginsdk.ServeConfig{
		Enumerator: pluginsdk.Static(
			descriptor("ImageEffect", "org.plughost.sample.blur", "Blur"),
			descriptor("ImageEffect", "org.plughost.sample.invert", "Invert"),
			descriptor("Audio", "org.plughost.sample.gain", "Gain"),
		),
	})
}
