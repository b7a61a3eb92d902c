package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPool_SubmitAndCollect(t *testing.T) {
	work := func(bundle map[string]any) (any, error) {
		return bundle["n"], nil
	}

	p := NewPool(work, 4)
	defer p.Close()

	const jobs = 20
	go func() {
		for i := 0; i < jobs; i++ {
			p.Submit(Job{Index: i, Bundle: map[string]any{"n": i}})
		}
	}()

	seen := make(map[int]bool, jobs)
	for i := 0; i < jobs; i++ {
		r := <-p.Results()
		if r.Err != nil {
			t.Fatalf("job %d error = %v", r.Index, r.Err)
		}
		if r.Value != r.Index {
			t.Errorf("job %d value = %v", r.Index, r.Value)
		}
		seen[r.Index] = true
	}
	if len(seen) != jobs {
		t.Errorf("collected %d distinct jobs; want %d", len(seen), jobs)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(func(map[string]any) (any, error) { return nil, nil }, 2)
	p.Close()

	if p.Submit(Job{}) {
		t.Error("Submit after Close should return false")
	}
}

func TestRunBatch_OrderPreserved(t *testing.T) {
	work := func(bundle map[string]any) (any, error) {
		return fmt.Sprintf("card-%v", bundle["n"]), nil
	}

	bundles := make([]map[string]any, 10)
	for i := range bundles {
		bundles[i] = map[string]any{"n": i}
	}

	results := RunBatch(context.Background(), work, bundles, 4)
	if len(results) != len(bundles) {
		t.Fatalf("results = %d; want %d", len(results), len(bundles))
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("result[%d] is nil", i)
		}
		want := fmt.Sprintf("card-%d", i)
		if r.Value != want {
			t.Errorf("result[%d] = %v; want %v", i, r.Value, want)
		}
	}
}

func TestRunBatch_Errors(t *testing.T) {
	boom := errors.New("boom")
	work := func(bundle map[string]any) (any, error) {
		if bundle["bad"] == true {
			return nil, boom
		}
		return "ok", nil
	}

	bundles := []map[string]any{
		{"bad": false},
		{"bad": true},
		{"bad": false},
	}

	results := RunBatch(context.Background(), work, bundles, 2)
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("good jobs should succeed")
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("result[1].Err = %v; want boom", results[1].Err)
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunBatch(ctx, func(map[string]any) (any, error) { return "x", nil },
		[]map[string]any{{}, {}, {}, {}}, 2)

	for i, r := range results {
		if r.Err == nil {
			t.Errorf("result[%d] should carry the context error", i)
		}
	}
}

func TestRunBatch_Empty(t *testing.T) {
	results := RunBatch(context.Background(), nil, nil, 4)
	if len(results) != 0 {
		t.Errorf("results = %d; want 0", len(results))
	}
}
