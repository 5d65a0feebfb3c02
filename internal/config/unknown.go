package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"server": {
		"base_url", "share_base_url", "metadata_timeout", "upload_timeout",
		"refresh_timeout", "user_agent",
	},
	"transfers": {
		"max_file_size", "max_batch_files", "allowed_extensions", "parallel_uploads",
		"success_linger", "bandwidth_limit",
	},
	"storage": {"session_backend", "data_dir"},
	"logging": {"log_level", "log_format"},
	"metrics": {"textfile"},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates have the same distance.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	slices.Sort(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. A bare top-level key is
// matched against every section's keys so that a flat "log_level = ..."
// points the user at the right section.
func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		name := key[0]

		if section := sectionOf(name); section != "" {
			return fmt.Errorf("unknown config key %q: it belongs in the [%s] section", name, section)
		}

		if s := closestMatch(name, knownSections); s != "" {
			return fmt.Errorf("unknown config key %q: did you mean [%s]?", name, s)
		}

		return fmt.Errorf("unknown config key %q", name)
	}

	section, field := key[0], strings.Join(key[1:], ".")

	if s := closestMatch(field, knownKeys[section]); s != "" {
		return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", field, section, s)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// sectionOf returns the section that defines name, or "".
func sectionOf(name string) string {
	for _, section := range knownSections {
		if slices.Contains(knownKeys[section], name) {
			return section
		}
	}

	return ""
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using a
// single-row buffer pair.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
