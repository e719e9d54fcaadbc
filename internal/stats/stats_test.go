package stats

import "testing"

func TestCalculateBasic(t *testing.T) {
	s := Calculate([]float64{1, 2, 3, 4, 5})
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("expected min=1 max=5, got min=%v max=%v", s.Min, s.Max)
	}
	if s.Mean != 3 {
		t.Errorf("expected mean 3, got %v", s.Mean)
	}
	if s.Median != 3 {
		t.Errorf("expected median 3, got %v", s.Median)
	}
	if s.Samples != 5 {
		t.Errorf("expected 5 samples, got %d", s.Samples)
	}
}

func TestCalculateEmpty(t *testing.T) {
	s := Calculate(nil)
	if s.Samples != 0 {
		t.Errorf("expected zero Summary for empty input, got %+v", s)
	}
}

func TestWindowOverwritesOldestOnceFull(t *testing.T) {
	w := NewWindow(3)
	w.Add(1)
	w.Add(2)
	w.Add(3)
	w.Add(4) // overwrites the 1

	s := w.Summary()
	if s.Samples != 3 {
		t.Fatalf("expected window capped at 3 samples, got %d", s.Samples)
	}
	if s.Min != 2 || s.Max != 4 {
		t.Errorf("expected min=2 max=4 after overwrite, got min=%v max=%v", s.Min, s.Max)
	}
}

func TestWindowPartiallyFilled(t *testing.T) {
	w := NewWindow(5)
	w.Add(10)
	w.Add(20)

	s := w.Summary()
	if s.Samples != 2 {
		t.Fatalf("expected 2 samples before window fills, got %d", s.Samples)
	}
	if s.Mean != 15 {
		t.Errorf("expected mean 15, got %v", s.Mean)
	}
}
