package transcription

import "context"

// callPool bounds the number of provider calls in flight at once. Callers
// block cooperatively until a slot frees or their context expires.
type callPool struct {
	slots chan struct{}
}

func newCallPool(size int) *callPool {
	if size < 1 {
		size = 1
	}
	return &callPool{slots: make(chan struct{}, size)}
}

// run executes fn while holding a pool slot. It returns the context error
// without running fn when the context expires before a slot is available.
func (p *callPool) run(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	fn()
	return nil
}
