package harness

import "github.com/roach88/meshroom/internal/sync/wire"

// pipeTransport implements internal/sync.Transport over a pair of
// buffered channels, one per direction; two pipeTransports sharing a
// crossed pair of channels let two Reconcilers run a round
// concurrently without a real network. Grounded directly on
// internal/sync's own round_test.go fixture of the same name.
type pipeTransport struct {
	out chan<- frame
	in  <-chan frame
}

type frame struct {
	kind    wire.Kind
	payload []byte
}

func newPipePair() (*pipeTransport, *pipeTransport) {
	ab := make(chan frame, 64)
	ba := make(chan frame, 64)
	return &pipeTransport{out: ab, in: ba}, &pipeTransport{out: ba, in: ab}
}

func (p *pipeTransport) Send(kind wire.Kind, payload []byte) error {
	p.out <- frame{kind: kind, payload: payload}
	return nil
}

func (p *pipeTransport) Recv() (wire.Kind, []byte, error) {
	f := <-p.in
	return f.kind, f.payload, nil
}
