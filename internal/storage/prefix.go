package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// This isolates the ledger and journal keyspaces within a single
// underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func (p *PrefixDB) prefixed(key []byte) []byte {
	return withPrefix(p.prefix, key)
}

func withPrefix(prefix, key []byte) []byte {
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over all keys with the given prefix (within the PrefixDB namespace).
// The callback receives keys with the PrefixDB prefix stripped, so callers see only
// their logical keyspace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	fullPrefix := p.prefixed(prefix)
	return p.inner.ForEach(fullPrefix, func(key, value []byte) error {
		stripped := key[len(p.prefix):]
		return fn(stripped, value)
	})
}

// Update runs fn in a transaction of the inner DB with keys prefixed.
func (p *PrefixDB) Update(fn func(txn Txn) error) error {
	return p.inner.Update(func(txn Txn) error {
		return fn(&prefixTxn{inner: txn, prefix: p.prefix})
	})
}

// View runs fn against a snapshot of the inner DB with keys prefixed.
func (p *PrefixDB) View(fn func(txn Reader) error) error {
	return p.inner.View(func(r Reader) error {
		return fn(&prefixReader{inner: r, prefix: p.prefix})
	})
}

// Close is a no-op, the outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

type prefixReader struct {
	inner  Reader
	prefix []byte
}

func (r *prefixReader) Get(key []byte) ([]byte, error) {
	return r.inner.Get(withPrefix(r.prefix, key))
}

func (r *prefixReader) Has(key []byte) (bool, error) {
	return r.inner.Has(withPrefix(r.prefix, key))
}

type prefixTxn struct {
	inner  Txn
	prefix []byte
}

func (t *prefixTxn) Get(key []byte) ([]byte, error) {
	return t.inner.Get(withPrefix(t.prefix, key))
}

func (t *prefixTxn) Has(key []byte) (bool, error) {
	return t.inner.Has(withPrefix(t.prefix, key))
}

func (t *prefixTxn) Put(key, value []byte) error {
	return t.inner.Put(withPrefix(t.prefix, key), value)
}

func (t *prefixTxn) Delete(key []byte) error {
	return t.inner.Delete(withPrefix(t.prefix, key))
}
