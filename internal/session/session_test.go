package session

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := New(1, DirectionExport, "csv", "customers.csv")
	if s.State != StateNew || s.ID.String() == "" {
		t.Fatalf("New() session = %+v", s)
	}

	s.Preloaded([]int64{10, 20, 30, 40, 50})
	if s.State != StateActive || s.TotalCount != 5 {
		t.Fatalf("after preload: state %s, total %d", s.State, s.TotalCount)
	}

	// A repeated prepare call must not reset the snapshot.
	s.Position = 2
	s.Preloaded([]int64{99})
	if s.TotalCount != 5 || s.Position != 2 {
		t.Errorf("preload not idempotent: total %d, position %d", s.TotalCount, s.Position)
	}

	s.Advance(2)
	if s.Position != 4 || s.Done() {
		t.Errorf("after advance: position %d, done %v", s.Position, s.Done())
	}
	s.Advance(2)
	if s.Position != 5 || !s.Done() {
		t.Errorf("at end: position %d, done %v", s.Position, s.Done())
	}
}

func TestPageIDs(t *testing.T) {
	s := New(1, DirectionExport, "csv", "customers.csv")
	s.Preloaded([]int64{10, 20, 30, 40, 50})

	tests := []struct {
		name     string
		position int
		limit    int
		want     []int64
	}{
		{name: "first page", position: 0, limit: 2, want: []int64{10, 20}},
		{name: "partial last page", position: 4, limit: 2, want: []int64{50}},
		{name: "past end", position: 5, limit: 2, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Position = tt.position
			got := s.PageIDs(tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("PageIDs() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("PageIDs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestStartedForImport(t *testing.T) {
	s := New(1, DirectionImport, "xml", "customers.xml")
	s.Started(200)
	if s.State != StateActive || s.TotalCount != 200 {
		t.Fatalf("after start: state %s, total %d", s.State, s.TotalCount)
	}
	s.Started(9)
	if s.TotalCount != 200 {
		t.Errorf("start not idempotent: total %d", s.TotalCount)
	}

	s.Log("row 3: bad email", "row 9: missing group")
	if len(s.Messages) != 2 {
		t.Errorf("Messages = %v", s.Messages)
	}
}
