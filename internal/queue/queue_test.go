package queue

import (
	"reflect"
	"testing"

	"github.com/starford/robotdb/internal/models"
)

func strPtr(s string) *string { return &s }

func resourceRecord() *models.Record {
	return &models.Record{
		FilePath: "/ws/resource.robot",
		Kind:     models.KindResource,
		Libraries: []models.LibraryImport{
			{Name: "OperatingSystem"},
			{Name: "MyLibrary.py", Path: strPtr("/ws/MyLibrary.py"), Arguments: []string{"a"}},
		},
		Resources: []string{"/ws/other.robot"},
	}
}

func TestPopNext_InsertionOrder(t *testing.T) {
	q := New()
	q.Add("BuiltIn", models.KindLibrary)
	q.Add("some.robot", models.KindUnknown)
	q.Add("resource.robot", models.KindResource)

	want := []Item{
		{Identity: "BuiltIn", State: State{Status: models.StatusUnscanned, Kind: models.KindLibrary}},
		{Identity: "some.robot", State: State{Status: models.StatusUnscanned, Kind: models.KindUnknown}},
		{Identity: "resource.robot", State: State{Status: models.StatusUnscanned, Kind: models.KindResource}},
	}
	for i, w := range want {
		got, ok := q.PopNext()
		if !ok {
			t.Fatalf("pop %d: queue exhausted early", i)
		}
		if !reflect.DeepEqual(got, w) {
			t.Errorf("pop %d = %+v, want %+v", i, got, w)
		}
	}
	if got, ok := q.PopNext(); ok {
		t.Errorf("fourth pop = %+v, want empty", got)
	}
}

func TestAdd_KnownIdentityKeepsState(t *testing.T) {
	q := New()
	if !q.Add("a.robot", models.KindResource) {
		t.Fatal("first add should report new identity")
	}
	if q.Add("a.robot", models.KindLibrary) {
		t.Error("second add should be a no-op")
	}
	st, _ := q.State("a.robot")
	if st.Kind != models.KindResource || st.Status != models.StatusUnscanned {
		t.Errorf("state changed: %+v", st)
	}
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}
}

func TestMerge_QueuesReferences(t *testing.T) {
	q := New()
	added := q.Merge(resourceRecord())
	if added != 3 || q.Len() != 3 {
		t.Fatalf("added = %d, len = %d, want 3", added, q.Len())
	}
	for _, it := range q.Pending() {
		if it.State.Status != models.StatusQueued {
			t.Errorf("%s status = %s, want queued", it.Identity, it.State.Status)
		}
	}
	st, _ := q.State("/ws/MyLibrary.py")
	if st.Kind != models.KindLibrary || !reflect.DeepEqual(st.Args, []string{"a"}) {
		t.Errorf("library state = %+v", st)
	}
}

func TestMerge_Twice(t *testing.T) {
	q := New()
	q.Merge(resourceRecord())
	if added := q.Merge(resourceRecord()); added != 0 {
		t.Errorf("second merge added %d", added)
	}
	if q.Len() != 3 {
		t.Errorf("len = %d, want 3", q.Len())
	}
}

func TestMerge_DoesNotDowngradeUnscanned(t *testing.T) {
	q := New()
	q.Add("OperatingSystem", models.KindLibrary)
	q.Merge(resourceRecord())
	st, _ := q.State("OperatingSystem")
	if st.Status != models.StatusUnscanned {
		t.Errorf("status = %s, want unscanned", st.Status)
	}
}

func TestMerge_AfterPopIsNoop(t *testing.T) {
	q := New()
	q.Add("/ws/other.robot", models.KindResource)
	item, _ := q.PopNext()
	q.Complete(item.Identity)

	q.Merge(resourceRecord())
	for _, it := range q.Pending() {
		if it.Identity == "/ws/other.robot" {
			t.Fatal("popped identity was queued again")
		}
	}
	st, ok := q.State("/ws/other.robot")
	if !ok || st.Status != models.StatusScanned {
		t.Errorf("state = %+v, ok = %v", st, ok)
	}
}

func TestFail_StaysSeen(t *testing.T) {
	q := New()
	q.Add("OperatingSystem", models.KindLibrary)
	item, _ := q.PopNext()
	q.Fail(item.Identity)

	if added := q.Merge(resourceRecord()); added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	for _, it := range q.Pending() {
		if it.Identity == "OperatingSystem" {
			t.Fatal("failed identity was queued again")
		}
	}
	st, ok := q.State("OperatingSystem")
	if !ok || st.Status != models.StatusFailed {
		t.Errorf("state = %+v, ok = %v", st, ok)
	}
}

func TestMerge_VariableFiles(t *testing.T) {
	q := New()
	q.Merge(&models.Record{
		VariableFiles: []models.VariableFileImport{
			{"/ws/vars.py": {Arguments: []string{"x"}}},
		},
	})
	st, ok := q.State("/ws/vars.py")
	if !ok || st.Kind != models.KindVariable || st.Args[0] != "x" {
		t.Errorf("state = %+v, ok = %v", st, ok)
	}
}

func TestEmptyIdentityIgnored(t *testing.T) {
	q := New()
	if q.Add("", models.KindLibrary) {
		t.Error("empty identity should be rejected")
	}
	if q.Len() != 0 {
		t.Errorf("len = %d", q.Len())
	}
}
