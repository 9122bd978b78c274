package resolver

import "sync"

// fakeDHT is an in-memory stand-in for a real Kademlia-style overlay,
// the same simplification the onion package's fakeRoutingTable makes
// for the routing layer.
type fakeDHT struct {
	mu sync.Mutex
	m  map[RecordKey][]byte
}

func newFakeDHT() *fakeDHT {
	return &fakeDHT{m: make(map[RecordKey][]byte)}
}

func (f *fakeDHT) Publish(key RecordKey, recordBytes []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(recordBytes))
	copy(cp, recordBytes)
	f.m[key] = cp
	return nil
}

func (f *fakeDHT) FindValue(key RecordKey) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[key]
	return v, ok, nil
}
