package usecase

import "TickStockApp/internal/domain/models"

// tickRing keeps the newest cap ticks of one symbol in insertion order.
type tickRing struct {
	buf   []models.Tick
	start int
	n     int
	seq   uint64 // sequence number of the newest tick
}

func newTickRing(capacity int) *tickRing {
	return &tickRing{buf: make([]models.Tick, capacity)}
}

// push appends t, evicting the oldest tick when full, and returns its sequence number.
func (r *tickRing) push(t models.Tick) uint64 {
	r.seq++
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = t
		r.n++
		return r.seq
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
	return r.seq
}

func (r *tickRing) len() int { return r.n }

// last copies the newest k ticks, oldest first.
func (r *tickRing) last(k int) []models.Tick {
	return r.upTo(r.seq, k)
}

// upTo copies at most k ticks ending at sequence number seq, oldest first.
// It returns nil once seq has been evicted.
func (r *tickRing) upTo(seq uint64, k int) []models.Tick {
	if seq == 0 || seq > r.seq {
		return nil
	}
	newer := int(r.seq - seq)
	if newer >= r.n {
		return nil
	}
	avail := r.n - newer
	if k > avail {
		k = avail
	}
	out := make([]models.Tick, k)
	offset := avail - k
	for i := 0; i < k; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}
