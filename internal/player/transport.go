package player

import "context"

// Transport is the byte-carrier contract the Stream writer drives. The
// stdin-pipe Handle is the only implementation shipped by default; the
// design admits substitute carriers (shared-memory ring, loopback socket)
// behind the same interface without changing the pipeline above it.
type Transport interface {
	Write(ctx context.Context, payload []byte) error
	IsAlive() bool
	Close() error
}

var _ Transport = (*Handle)(nil)
