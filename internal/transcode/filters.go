/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transcode

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FilterNormal applies no audio filter.
const FilterNormal = "normal"

var ErrUnknownFilter = errors.New("unknown audio filter")

// filters maps filter names to ffmpeg -af chains.
var filters = map[string]string{
	FilterNormal: "",
	"bassboost":  "bass=g=20,dynaudnorm=f=200",
	"nightcore":  "asetrate=48000*1.25,aresample=48000,atempo=1.06",
	"slowed":     "asetrate=48000*0.8,aresample=48000,atempo=0.9,aecho=0.8:0.9:1000:0.3",
	"8d":         "apulsator=hz=0.08",
	"vaporwave":  "asetrate=48000*0.9,aresample=48000,atempo=0.85",
	"soft":       "equalizer=f=1000:width_type=h:width=200:g=-5",
	"loud":       "volume=1.5,dynaudnorm=f=150",
}

// FilterNames lists the known filters in stable order.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidFilter reports whether name is a known filter. Empty means normal.
func ValidFilter(name string) bool {
	if name == "" {
		return true
	}
	_, ok := filters[strings.ToLower(name)]
	return ok
}

// FilterChain builds the -af argument for a filter, playback rate and volume.
// An empty result means no -af flag is needed.
func FilterChain(filter string, rate float64, volumePercent int) (string, error) {
	var parts []string

	if filter != "" {
		chain, ok := filters[strings.ToLower(filter)]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownFilter, filter)
		}
		if chain != "" {
			parts = append(parts, chain)
		}
	}

	if rate > 0 && rate != 1.0 {
		parts = append(parts, "atempo="+strconv.FormatFloat(rate, 'f', -1, 64))
	}

	if volumePercent >= 0 && volumePercent != 100 {
		parts = append(parts, "volume="+strconv.FormatFloat(float64(volumePercent)/100, 'f', -1, 64))
	}

	return strings.Join(parts, ","), nil
}
