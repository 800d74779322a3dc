package policy

import (
	"context"
	"strings"

	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

// AnimalSource returns the current animal list with status histories.
type AnimalSource interface {
	ListAnimals(ctx context.Context) ([]catalog.Animal, error)
}

// Guard applies duplicate suppression across the tool calls of one request.
// It is not safe for concurrent use.
type Guard struct {
	deduper *Deduper
	source  AnimalSource

	animals    []catalog.Animal
	duplicates []Match
	dupByID    map[string]Match
	appended   map[string]bool
}

func (d *Deduper) Guard(source AnimalSource) *Guard {
	return &Guard{
		deduper:  d,
		source:   source,
		dupByID:  make(map[string]Match),
		appended: make(map[string]bool),
	}
}

// BeforeStatus reports whether appending report to the animal would repeat a
// recent event. The animal list is fetched fresh on every call. An unknown
// animal is never a duplicate; the append itself reports it.
func (g *Guard) BeforeStatus(ctx context.Context, animalID, report string) (Match, bool, error) {
	if err := g.refresh(ctx); err != nil {
		return Match{}, false, err
	}
	animal, ok := g.byID(animalID)
	if !ok {
		return Match{}, false, nil
	}
	m, dup := g.deduper.FindDuplicate(animal, report)
	// Repeats of this request's own append are not recorded.
	if dup && !g.appended[animal.ID] {
		if _, seen := g.dupByID[animal.ID]; !seen {
			g.duplicates = append(g.duplicates, m)
		}
		g.dupByID[animal.ID] = m
	}
	return m, dup, nil
}

// RecordAppended marks that this request appended a status to the animal.
func (g *Guard) RecordAppended(animalID string) {
	g.appended[animalID] = true
}

// BeforeNotify reports whether a notification should be suppressed because
// the team already knows about the event.
func (g *Guard) BeforeNotify(ctx context.Context, animalID, description string) (Match, bool, error) {
	if g.animals == nil {
		if err := g.refresh(ctx); err != nil {
			return Match{}, false, err
		}
	}

	targetID := strings.TrimSpace(animalID)
	if targetID == "" {
		targetID = g.infer(description)
	}

	if targetID == "" {
		m, dup := g.matchesKnownDuplicate(description)
		return m, dup, nil
	}

	if g.appended[targetID] {
		return Match{}, false, nil
	}
	if m, ok := g.dupByID[targetID]; ok {
		return m, true, nil
	}

	if err := g.refresh(ctx); err != nil {
		return Match{}, false, err
	}
	animal, ok := g.byID(targetID)
	if !ok {
		return Match{}, false, nil
	}
	m, dup := g.deduper.FindDuplicate(animal, description)
	return m, dup, nil
}

// matchesKnownDuplicate checks a description that names no single animal
// against the animals this request already found duplicates for.
func (g *Guard) matchesKnownDuplicate(description string) (Match, bool) {
	for _, d := range g.duplicates {
		if g.appended[d.AnimalID] {
			continue
		}
		animal, ok := g.byID(d.AnimalID)
		if !ok {
			continue
		}
		if m, dup := g.deduper.FindDuplicate(animal, description); dup {
			return m, true
		}
	}
	return Match{}, false
}

func (g *Guard) refresh(ctx context.Context) error {
	animals, err := g.source.ListAnimals(ctx)
	if err != nil {
		return err
	}
	if animals == nil {
		animals = []catalog.Animal{}
	}
	g.animals = animals
	return nil
}

func (g *Guard) byID(id string) (catalog.Animal, bool) {
	for _, a := range g.animals {
		if a.ID == id {
			return a, true
		}
	}
	return catalog.Animal{}, false
}

// infer returns the id of the single animal whose id or name appears as whole
// words in text, or "" when none or several do.
func (g *Guard) infer(text string) string {
	haystack := " " + strings.Join(words(text), " ") + " "
	found := ""
	for _, a := range g.animals {
		if !mentions(haystack, a.ID) && !mentions(haystack, a.Name) {
			continue
		}
		if found != "" && found != a.ID {
			return ""
		}
		found = a.ID
	}
	return found
}

func mentions(haystack, phrase string) bool {
	w := words(phrase)
	if len(w) == 0 {
		return false
	}
	return strings.Contains(haystack, " "+strings.Join(w, " ")+" ")
}
