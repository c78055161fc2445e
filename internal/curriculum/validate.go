package curriculum

import (
	"fmt"
	"strings"

	"codeberg.org/snonux/setu/internal"
)

// Problem describes one reason a curriculum was rejected.
type Problem struct {
	Level  int    // level order, 0 when not applicable
	ItemID string // empty for level-scoped problems
	Field  string
	Reason string
}

func (p Problem) String() string {
	var where []string
	if p.Level != 0 {
		where = append(where, fmt.Sprintf("level %d", p.Level))
	}
	if p.ItemID != "" {
		where = append(where, fmt.Sprintf("item %q", p.ItemID))
	}
	if p.Field != "" {
		where = append(where, p.Field)
	}
	if len(where) == 0 {
		return p.Reason
	}
	return strings.Join(where, ", ") + ": " + p.Reason
}

// ValidationError aborts a run before any backend call. It lists every
// problem found, not only the first.
type ValidationError struct {
	Source   string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid curriculum")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	switch len(e.Problems) {
	case 0:
	case 1:
		fmt.Fprintf(&b, ": %s", e.Problems[0])
	default:
		fmt.Fprintf(&b, " (%d problems):", len(e.Problems))
		for _, p := range e.Problems {
			fmt.Fprintf(&b, "\n  - %s", p)
		}
	}
	return b.String()
}

// Validate checks the invariants the pipeline relies on: unique level
// orders, filename-safe and globally unique item ids, a native meaning, and
// target text that survives normalize. It returns nil or a *ValidationError.
func Validate(def *Definition, normalize func(string) string) error {
	if def == nil {
		return &ValidationError{Problems: []Problem{{Reason: "curriculum is nil"}}}
	}

	var problems []Problem
	add := func(p Problem) { problems = append(problems, p) }

	levelSeen := make(map[int]bool, len(def.Levels))
	idSeen := make(map[string]string)

	for _, lvl := range def.Levels {
		if levelSeen[lvl.Order] {
			add(Problem{Level: lvl.Order, Field: "level", Reason: "duplicate level number"})
		}
		levelSeen[lvl.Order] = true

		if strings.TrimSpace(lvl.Topic) == "" {
			add(Problem{Level: lvl.Order, Field: "topic", Reason: "topic is empty"})
		}

		for i, item := range lvl.Items {
			id := item.ID
			if id == "" {
				add(Problem{Level: lvl.Order, Field: "id", Reason: fmt.Sprintf("item #%d has no id", i+1)})
			} else {
				if !internal.ValidAssetID(id) {
					add(Problem{Level: lvl.Order, ItemID: id, Field: "id",
						Reason: "id must start with a letter or digit and contain only letters, digits, '-' or '_'"})
				}
				folded := internal.FoldAssetID(id)
				if prev, ok := idSeen[folded]; ok {
					reason := "duplicate id"
					if prev != id {
						reason = fmt.Sprintf("id collides with %q on case-insensitive filesystems", prev)
					}
					add(Problem{Level: lvl.Order, ItemID: id, Field: "id", Reason: reason})
				} else {
					idSeen[folded] = id
				}
			}

			if strings.TrimSpace(item.NativeMeaning) == "" {
				add(Problem{Level: lvl.Order, ItemID: id, Field: "native_meaning", Reason: "native meaning is empty"})
			}
			if normalize(item.TargetText) == "" {
				add(Problem{Level: lvl.Order, ItemID: id, Field: "target_text", Reason: "target text is empty after normalization"})
			}
			if _, err := ParseVariant(string(item.Variant)); err != nil {
				add(Problem{Level: lvl.Order, ItemID: id, Field: "variant", Reason: err.Error()})
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
