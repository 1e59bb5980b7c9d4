package roster

import "testing"

func TestCheckDuplicatesCaseInsensitive(t *testing.T) {
	list := []Participant{
		{Name: TypedName("Tan Wei")},
		{Name: TypedName("TAN WEI")},
	}

	duplicate := CheckDuplicates(list)
	if duplicate == nil {
		t.Fatalf("expected a duplicate report")
	}
	if duplicate.FirstRow != 1 || duplicate.SecondRow != 2 {
		t.Fatalf("expected rows 1 and 2, got %d and %d", duplicate.FirstRow, duplicate.SecondRow)
	}
}

func TestCheckDuplicatesReportsFirstRepeatOnly(t *testing.T) {
	list := []Participant{
		{Name: TypedName("ONE")},
		{Name: TypedName("TWO")},
		{Name: TypedName("two")},
		{Name: TypedName("ONE")},
	}

	duplicate := CheckDuplicates(list)
	if duplicate == nil {
		t.Fatalf("expected a duplicate report")
	}
	if duplicate.FirstRow != 2 || duplicate.SecondRow != 3 {
		t.Fatalf("expected first repeat at rows 2 and 3, got %d and %d", duplicate.FirstRow, duplicate.SecondRow)
	}
}

func TestCheckDuplicatesExemptsBlankNames(t *testing.T) {
	list := []Participant{
		{Name: TypedName("")},
		{Name: TypedName("   ")},
		{Name: TypedName("TAN WEI")},
	}

	if duplicate := CheckDuplicates(list); duplicate != nil {
		t.Fatalf("blank names must not collide, got %v", duplicate)
	}
}

func TestCheckConflictsOneRecordPerCollidingEntry(t *testing.T) {
	existing := []Participant{
		{Name: TypedName("TAN WEI"), SitupReps: 30},
		{Name: TypedName("LEE EE HANK"), SitupReps: 40},
	}
	incoming := []Participant{
		{Name: TypedName("tan wei"), SitupReps: 44},
		{Name: TypedName("NG KOK")},
	}

	conflicts := CheckConflicts(incoming, existing)
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(conflicts))
	}
	if conflicts[0].ExistingIndex != 0 {
		t.Fatalf("expected existing index 0, got %d", conflicts[0].ExistingIndex)
	}
	if conflicts[0].Incoming.SitupReps != 44 {
		t.Fatalf("conflict must carry the incoming data")
	}
}

func TestResolveConflictsSkipLeavesExistingUntouched(t *testing.T) {
	existing := []Participant{
		{ID: "p-1", Name: TypedName("TAN WEI"), SitupReps: 30, PushupReps: 25},
	}
	incoming := []Participant{
		{ID: "p-9", Name: TypedName("TAN WEI"), SitupReps: 44},
		{ID: "p-10", Name: TypedName("NG KOK"), SitupReps: 20},
	}
	conflicts := CheckConflicts(incoming, existing)

	result := ResolveConflicts(ConflictSkip, existing, incoming, conflicts)
	if len(result) != 2 {
		t.Fatalf("expected existing plus non-conflicting append, got %d rows", len(result))
	}
	if result[0].SitupReps != 30 || result[0].PushupReps != 25 || result[0].ID != "p-1" {
		t.Fatalf("skip must leave the existing entry completely unchanged: %+v", result[0])
	}
	if result[1].Name.Text != "NG KOK" {
		t.Fatalf("non-conflicting incoming entry must be appended, got %+v", result[1])
	}
}

func TestResolveConflictsOverwriteReplacesInPlace(t *testing.T) {
	existing := []Participant{
		{ID: "p-1", Name: TypedName("TAN WEI"), SitupReps: 30, Editing: true},
		{ID: "p-2", Name: TypedName("LEE EE HANK")},
	}
	incoming := []Participant{
		{ID: "p-9", Name: TypedName("TAN WEI"), SitupReps: 44},
	}
	conflicts := CheckConflicts(incoming, existing)

	result := ResolveConflicts(ConflictOverwrite, existing, incoming, conflicts)
	if len(result) != 2 {
		t.Fatalf("expected no appends for a pure overwrite, got %d rows", len(result))
	}
	if result[0].SitupReps != 44 {
		t.Fatalf("expected overwritten measurements, got %+v", result[0])
	}
	if result[0].ID != "p-1" {
		t.Fatalf("overwrite must keep the stable identifier of the existing row, got %q", result[0].ID)
	}
	if result[0].Editing {
		t.Fatalf("overwritten rows must not stay in editing state")
	}
	if result[1].Name.Text != "LEE EE HANK" {
		t.Fatalf("untouched rows must keep their position")
	}
}

func TestResolveConflictsZeroConflictsIsPureAppend(t *testing.T) {
	existing := []Participant{{ID: "p-1", Name: TypedName("TAN WEI")}}
	incoming := []Participant{{ID: "p-2", Name: TypedName("NG KOK")}}

	result := ResolveConflicts(ConflictOverwrite, existing, incoming, nil)
	if len(result) != 2 {
		t.Fatalf("expected pure append, got %d rows", len(result))
	}
	if result[1].ID != "p-2" {
		t.Fatalf("expected incoming entry appended last")
	}
}
