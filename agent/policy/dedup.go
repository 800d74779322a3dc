package policy

import (
	"strings"
	"time"
	"unicode"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

const (
	DefaultDedupWindow    = 24 * time.Hour
	DefaultDedupThreshold = 0.5
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "am": {}, "to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "with": {},
	"and": {}, "or": {}, "but": {}, "it": {}, "its": {}, "he": {}, "she": {}, "they": {}, "his": {},
	"her": {}, "their": {}, "him": {}, "them": {}, "this": {}, "that": {}, "there": {}, "i": {},
	"we": {}, "you": {}, "my": {}, "our": {}, "has": {}, "have": {}, "had": {}, "seem": {},
	"seems": {}, "seemed": {}, "appear": {}, "appears": {}, "appeared": {}, "look": {},
	"looks": {}, "looked": {}, "like": {}, "very": {}, "really": {}, "just": {}, "think": {},
	"now": {}, "again": {}, "bit": {}, "little": {}, "some": {}, "from": {}, "by": {}, "as": {},
	"today": {}, "still": {}, "also": {}, "please": {}, "reported": {}, "report": {},
}

// Match is an existing status event a new report duplicates.
type Match struct {
	AnimalID   string
	AnimalName string
	Event      catalog.StatusEvent
	Similarity float64
}

// Deduper decides whether a report repeats a recent status event of the
// same animal.
type Deduper struct {
	Window    time.Duration
	Threshold float64
	now       func() time.Time
}

func NewDeduper(window time.Duration, threshold float64) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDedupThreshold
	}
	return &Deduper{Window: window, Threshold: threshold, now: time.Now}
}

// WithClock returns a copy that reads the current time from now.
func (d *Deduper) WithClock(now func() time.Time) *Deduper {
	cp := *d
	cp.now = now
	return &cp
}

// FindDuplicate returns the most recent in-window event of animal whose
// content matches report.
func (d *Deduper) FindDuplicate(animal catalog.Animal, report string) (Match, bool) {
	exclude := animalTokens(animal)
	want := contentTokens(report, exclude)
	if len(want) == 0 {
		return Match{}, false
	}

	cutoff := d.now().Add(-d.Window)
	for _, ev := range animal.LastStatus {
		if ev.Time.Before(cutoff) {
			continue
		}
		sim := jaccard(want, contentTokens(ev.Status, exclude))
		if sim >= d.Threshold {
			return Match{
				AnimalID:   animal.ID,
				AnimalName: animal.Name,
				Event:      ev,
				Similarity: sim,
			}, true
		}
	}
	return Match{}, false
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func contentTokens(s string, exclude map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range words(s) {
		if _, skip := stopWords[w]; skip {
			continue
		}
		if _, skip := exclude[w]; skip {
			continue
		}
		out[stem(w)] = struct{}{}
	}
	return out
}

func animalTokens(a catalog.Animal) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range words(a.ID + " " + a.Name) {
		out[w] = struct{}{}
	}
	return out
}

func stem(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
