package roster

import "fmt"

// DuplicateNameError reports the first same-name collision found in a
// roster, citing both 1-based row numbers.
type DuplicateNameError struct {
	Name      string
	FirstRow  int
	SecondRow int
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate participant name %q in rows %d and %d", e.Name, e.FirstRow, e.SecondRow)
}

// CheckDuplicates scans the roster in order and reports the first repeated
// normalized name. Blank names are exempt; an empty result is nil.
func CheckDuplicates(list []Participant) *DuplicateNameError {
	seen := make(map[string]int, len(list))
	for i, participant := range list {
		key := participant.Name.Normalized()
		if key == "" {
			continue
		}
		if firstIndex, ok := seen[key]; ok {
			return &DuplicateNameError{
				Name:      participant.Name.Text,
				FirstRow:  firstIndex + 1,
				SecondRow: i + 1,
			}
		}
		seen[key] = i
	}
	return nil
}

// ConflictAction is the user's decision for a batch of name collisions.
type ConflictAction string

const (
	// ConflictOverwrite replaces the colliding existing entries in place.
	ConflictOverwrite ConflictAction = "overwrite"
	// ConflictSkip leaves the colliding existing entries untouched.
	ConflictSkip ConflictAction = "skip"
)

// Conflict records one incoming participant whose normalized name collides
// with an existing roster entry.
type Conflict struct {
	Name          string      `json:"name"`
	ExistingIndex int         `json:"existingIndex"`
	Incoming      Participant `json:"incoming"`
}

// CheckConflicts finds every incoming entry whose normalized name exactly
// equals an existing entry's normalized name.
func CheckConflicts(incoming, existing []Participant) []Conflict {
	if len(incoming) == 0 || len(existing) == 0 {
		return nil
	}
	existingByName := make(map[string]int, len(existing))
	for i, participant := range existing {
		key := participant.Name.Normalized()
		if key == "" {
			continue
		}
		if _, ok := existingByName[key]; !ok {
			existingByName[key] = i
		}
	}

	var conflicts []Conflict
	for _, participant := range incoming {
		key := participant.Name.Normalized()
		if key == "" {
			continue
		}
		if index, ok := existingByName[key]; ok {
			conflicts = append(conflicts, Conflict{
				Name:          participant.Name.Text,
				ExistingIndex: index,
				Incoming:      participant,
			})
		}
	}
	return conflicts
}

// ResolveConflicts applies the user's decision to an incoming batch and
// returns the resulting roster. Overwrite replaces the colliding existing
// entries in place; skip leaves them untouched. Non-conflicting incoming
// entries are appended in both cases, so a batch with zero conflicts is a
// pure append.
func ResolveConflicts(action ConflictAction, existing, incoming []Participant, conflicts []Conflict) []Participant {
	result := make([]Participant, len(existing))
	copy(result, existing)

	conflictingNames := make(map[string]int, len(conflicts))
	for _, conflict := range conflicts {
		conflictingNames[TypedName(conflict.Name).Normalized()] = conflict.ExistingIndex
	}

	for _, participant := range incoming {
		key := participant.Name.Normalized()
		existingIndex, collides := conflictingNames[key]
		if !collides {
			result = append(result, participant)
			continue
		}
		if action == ConflictOverwrite && existingIndex < len(result) {
			replacement := participant
			replacement.ID = result[existingIndex].ID
			replacement.Editing = false
			result[existingIndex] = replacement
		}
	}
	return result
}
