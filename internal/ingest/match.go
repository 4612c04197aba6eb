package ingest

// match.go joins descriptor records against admitted files.
//
// Logical image names in a descriptor rarely equal filenames exactly: casing,
// punctuation, and truncation drift, and one descriptor row often names an
// image family of which several numbered files exist. The matcher therefore
// normalizes aggressively, exhausts exact key lookups before any fuzzy
// containment scan, gathers numbered siblings into a single product, and
// never assigns a file twice.
//
// All state (the key multimap and the claimed-file set) lives for the
// duration of a single Match call.

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

// Length floors for the fuzzy containment scan. Shorter keys produce
// catastrophic substring hits, so the fuzzy pass ignores them; the exact
// pass uses every derived key.
const (
	minFuzzyFileKeyLen   = 3
	minFuzzySearchKeyLen = 5
)

// Bounded prefixes derived from long logical names, used as additional
// search keys against truncated filenames.
var searchPrefixLengths = [...]int{20, 30, 40}

// keySpace aggregates every admitted file under each of its lookup keys.
// The key list preserves first-insertion order so fuzzy scans are stable.
type keySpace struct {
	byKey map[string][]*CandidateFile
	keys  []string
}

func buildKeySpace(files []*CandidateFile) *keySpace {
	ks := &keySpace{byKey: make(map[string][]*CandidateFile)}
	for _, f := range files {
		for _, key := range fileKeys(f) {
			if _, seen := ks.byKey[key]; !seen {
				ks.keys = append(ks.keys, key)
			}
			ks.byKey[key] = append(ks.byKey[key], f)
		}
	}
	return ks
}

// fileKeys derives the lookup keys for one file, lowercased and deduplicated
// in derivation order.
func fileKeys(f *CandidateFile) []string {
	lower := f.LowerName
	base := strings.ToLower(f.BaseName)
	baseImage := strings.ToLower(f.BaseImageName)

	return dedupeKeys([]string{
		lower,
		base,
		baseImage,
		stripNonAlnum(lower),
		stripNonAlnum(base),
		stripNonAlnum(baseImage),
		stripDigits(base),
		lettersOnly(base),
		lettersOnly(baseImage),
	})
}

// searchKeys derives the lookup keys for one descriptor row.
func searchKeys(imageName string) []string {
	exact := strings.TrimSpace(imageName)
	lower := strings.ToLower(exact)
	stripped := stripNonAlnum(lower)

	keys := []string{
		exact,
		lower,
		stripped,
		stripDigits(lower),
		lettersOnly(lower),
	}
	for _, n := range searchPrefixLengths {
		if len(stripped) > n {
			keys = append(keys, stripped[:n])
		}
	}
	return dedupeKeys(keys)
}

func dedupeKeys(keys []string) []string {
	out := keys[:0]
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func stripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func stripDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

// Match computes assignments and a report for the given descriptor records
// and admitted files. Per-row failures never abort the call; they surface in
// the report. Match errs only on malformed input (a nil record list).
func Match(records []DescriptorRecord, files []*CandidateFile) ([]Assignment, *MatchReport, error) {
	if records == nil {
		return nil, nil, errors.New("ingest: nil descriptor record list")
	}

	ks := buildKeySpace(files)
	claimed := make(map[*CandidateFile]bool, len(files))
	productCount := make(map[string]int)

	var assignments []Assignment
	report := &MatchReport{}
	matchedRows := 0

	for _, rec := range records {
		keys := searchKeys(rec.ImageName)

		bucket := collectExact(ks, keys)
		if len(bucket) == 0 {
			bucket = collectFuzzy(ks, keys)
		}

		// Ordinal order decides positions; admission order breaks ties.
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].Ordinal != bucket[j].Ordinal {
				return bucket[i].Ordinal < bucket[j].Ordinal
			}
			return bucket[i].admitted < bucket[j].admitted
		})

		committed := 0
		for _, f := range bucket {
			if claimed[f] {
				continue
			}
			claimed[f] = true

			pos := productCount[rec.ProductID]
			productCount[rec.ProductID]++

			assignments = append(assignments, Assignment{
				ProductID: rec.ProductID,
				ImageName: rec.ImageName,
				File:      f,
				Position:  pos,
				Ordinal:   f.Ordinal,
				IsMain:    pos == 0,
			})
			committed++
		}

		if committed == 0 {
			report.UnmatchedRows = append(report.UnmatchedRows, rec)
		} else {
			matchedRows++
		}
	}

	for i := range assignments {
		assignments[i].ProductImageCount = productCount[assignments[i].ProductID]
	}

	for _, f := range files {
		if !claimed[f] {
			report.UnmatchedFiles = append(report.UnmatchedFiles, f.DisplayName)
		}
	}

	multi := 0
	for _, n := range productCount {
		if n > 1 {
			multi++
		}
	}
	avg := 0.0
	if len(productCount) > 0 {
		avg = float64(len(assignments)) / float64(len(productCount))
	}

	report.Stats = MatchStats{
		DescriptorRows:      len(records),
		FilesAdmitted:       len(files),
		Matched:             len(assignments),
		MatchedRows:         matchedRows,
		UnmatchedRows:       len(report.UnmatchedRows),
		UnmatchedFiles:      len(report.UnmatchedFiles),
		UniqueProducts:      len(productCount),
		MultiImageProducts:  multi,
		AvgImagesPerProduct: avg,
	}

	return assignments, report, nil
}

// collectExact gathers every file stored under the search keys themselves,
// in key order, without duplicates.
func collectExact(ks *keySpace, keys []string) []*CandidateFile {
	var bucket []*CandidateFile
	seen := make(map[*CandidateFile]bool)

	for _, key := range keys {
		for _, f := range ks.byKey[key] {
			if !seen[f] {
				seen[f] = true
				bucket = append(bucket, f)
			}
		}
	}
	return bucket
}

// collectFuzzy gathers files whose keys contain, or are contained by, a
// search key. Only keys above the length floors participate.
func collectFuzzy(ks *keySpace, keys []string) []*CandidateFile {
	var bucket []*CandidateFile
	seen := make(map[*CandidateFile]bool)

	for _, key := range keys {
		if len(key) <= minFuzzySearchKeyLen {
			continue
		}
		for _, fk := range ks.keys {
			if len(fk) <= minFuzzyFileKeyLen {
				continue
			}
			if !strings.Contains(fk, key) && !strings.Contains(key, fk) {
				continue
			}
			for _, f := range ks.byKey[fk] {
				if !seen[f] {
					seen[f] = true
					bucket = append(bucket, f)
				}
			}
		}
	}
	return bucket
}
