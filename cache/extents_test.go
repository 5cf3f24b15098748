package cache

import "testing"

func TestExtentsMergeAdjacent(t *testing.T) {
	var x extents
	x = x.write(10, []byte("bb"))
	x = x.write(20, []byte("dd"))
	x = x.write(12, []byte("cc"))
	if len(x) != 2 || x[0].offset != 10 || string(x[0].data) != "bbcc" {
		t.Fatalf("Extents are %+v", x)
	}
	x = x.write(14, []byte("xxxxxx"))
	if len(x) != 1 || x[0].end() != 22 {
		t.Fatalf("Extents are %+v", x)
	}
	// overwrite in the middle keeps the rest
	x = x.write(11, []byte("Z"))
	if string(x[0].data) != "bZccxxxxxxdd" {
		t.Fatalf("Data is %q", x[0].data)
	}
}

func TestSpliceGap(t *testing.T) {
	data := splice([]byte("ab"), 4, []byte("c"), false)
	if string(data) != "ab\x00\x00c" {
		t.Fatalf("Data is %q", data)
	}
	data = splice(data, 1, []byte("X"), true)
	if string(data) != "aX" {
		t.Fatalf("Data is %q", data)
	}
}

func TestAppendsGrowGeometrically(t *testing.T) {
	var data []byte
	var x extents
	grows, sparseGrows := 0, 0
	for i := 0; i < 4096; i++ {
		before := cap(data)
		data = splice(data, int64(i), []byte{'a'}, false)
		if cap(data) != before {
			grows++
		}
		sparseBefore := 0
		if len(x) > 0 {
			sparseBefore = cap(x[0].data)
		}
		x = x.write(int64(i), []byte{'a'})
		if cap(x[0].data) != sparseBefore {
			sparseGrows++
		}
	}
	if len(data) != 4096 || len(x) != 1 || len(x[0].data) != 4096 {
		t.Fatalf("Lengths are %d and %d", len(data), len(x[0].data))
	}
	if grows > 16 || sparseGrows > 16 {
		t.Fatalf("Reallocated %d and %d times", grows, sparseGrows)
	}
}
