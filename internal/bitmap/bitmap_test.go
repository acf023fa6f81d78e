package bitmap

import "testing"

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size, chunk, want int64
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{2500, 1024, 3},
		{100, 0, 0},
	}
	for _, c := range cases {
		if got := ChunkCount(c.size, c.chunk); got != c.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", c.size, c.chunk, got, c.want)
		}
	}
}

func TestMarkDoneAndIsDone(t *testing.T) {
	bm := Empty(10)

	if IsDone(bm, 5) {
		t.Fatal("expected chunk 5 to start unset")
	}
	if err := MarkDone(bm, 5); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if !IsDone(bm, 5) {
		t.Error("expected chunk 5 to be set")
	}
	if IsDone(bm, 4) {
		t.Error("expected chunk 4 to remain unset")
	}
}

func TestMarkDoneOutOfRange(t *testing.T) {
	bm := Empty(10)

	if err := MarkDone(bm, -1); err == nil {
		t.Error("expected error for negative chunk index")
	}
	if err := MarkDone(bm, 100); err == nil {
		t.Error("expected error for chunk index beyond bitmap capacity")
	}
}

func TestMissing(t *testing.T) {
	bm := Empty(10)
	for _, i := range []int64{0, 3, 9} {
		if err := MarkDone(bm, i); err != nil {
			t.Fatalf("MarkDone(%d) failed: %v", i, err)
		}
	}

	missing := Missing(bm, 10)
	want := []int64{1, 2, 4, 5, 6, 7, 8}
	if len(missing) != len(want) {
		t.Fatalf("Missing returned %v, want %v", missing, want)
	}
	for i, v := range want {
		if missing[i] != v {
			t.Errorf("Missing()[%d] = %d, want %d", i, missing[i], v)
		}
	}
}

func TestCompletedBytes(t *testing.T) {
	// size=2500, chunk=1024 -> chunks of 1024, 1024, 452
	const size, chunkSize = 2500, 1024
	count := ChunkCount(size, chunkSize)
	bm := Empty(count)
	for _, i := range []int64{0, 2} {
		if err := MarkDone(bm, i); err != nil {
			t.Fatalf("MarkDone(%d) failed: %v", i, err)
		}
	}

	got := CompletedBytes(bm, count, chunkSize, size)
	want := int64(1024 + 452)
	if got != want {
		t.Errorf("CompletedBytes = %d, want %d", got, want)
	}
}

func TestCompletedBytesAllDone(t *testing.T) {
	const size, chunkSize = 2500, 1024
	count := ChunkCount(size, chunkSize)
	bm := Empty(count)
	for i := int64(0); i < count; i++ {
		if err := MarkDone(bm, i); err != nil {
			t.Fatalf("MarkDone(%d) failed: %v", i, err)
		}
	}

	if got := CompletedBytes(bm, count, chunkSize, size); got != size {
		t.Errorf("CompletedBytes = %d, want %d", got, size)
	}
}

func TestLenMatchesSerializedBitmapSize(t *testing.T) {
	for _, chunkCount := range []int64{0, 1, 7, 8, 9, 64, 65} {
		bm := Empty(chunkCount)
		if int64(len(bm)) != Len(chunkCount) {
			t.Errorf("Empty(%d) produced %d bytes, want %d", chunkCount, len(bm), Len(chunkCount))
		}
	}
}
