package portaudio

import "testing"

func TestNextBlockTakesWholeBlocks(t *testing.T) {
	queue := []byte{1, 2, 3, 4, 5, 6}

	block, rest := nextBlock(queue, 4, false)
	if len(block) != 4 || block[0] != 1 || block[3] != 4 {
		t.Fatalf("expected first four bytes, got %v", block)
	}
	if len(rest) != 2 {
		t.Fatalf("expected two bytes left, got %v", rest)
	}
}

func TestNextBlockHoldsPartialBlockUntilFlushed(t *testing.T) {
	queue := []byte{7, 8}

	block, rest := nextBlock(queue, 4, false)
	if block != nil {
		t.Fatalf("expected partial block to wait for more audio, got %v", block)
	}
	if len(rest) != 2 {
		t.Fatalf("expected queue to stay intact, got %v", rest)
	}

	block, rest = nextBlock(rest, 4, true)
	if len(block) != 4 || block[0] != 7 || block[1] != 8 || block[2] != 0 || block[3] != 0 {
		t.Fatalf("expected padded block, got %v", block)
	}
	if len(rest) != 0 {
		t.Fatalf("expected empty queue, got %v", rest)
	}
}

func TestNextBlockOnEmptyQueue(t *testing.T) {
	if block, _ := nextBlock(nil, 4, true); block != nil {
		t.Fatalf("expected no block, got %v", block)
	}
}
