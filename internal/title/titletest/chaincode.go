// Package titletest emulates the title contract in memory so the registry can
// be exercised end to end against ledgertest.
package titletest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"titleregistry/internal/title/wire"
)

// Chaincode keeps world state and key history the way the deployed contract
// does. A deleted key disappears from world state but keeps its history.
type Chaincode struct {
	mu      sync.Mutex
	tx      wire.Transactions
	now     func() time.Time
	state   map[string]*wire.Record
	history map[string][]wire.HistoryRecord
	seq     int
}

// Option configures a Chaincode.
type Option func(*Chaincode)

// WithClock fixes the contract's notion of time.
func WithClock(now func() time.Time) Option {
	return func(c *Chaincode) {
		c.now = now
	}
}

// WithTransactions renames the contract's entry points.
func WithTransactions(tx wire.Transactions) Option {
	return func(c *Chaincode) {
		c.tx = tx.WithDefaults()
	}
}

func New(opts ...Option) *Chaincode {
	c := &Chaincode{
		tx:      wire.DefaultTransactions(),
		now:     time.Now,
		state:   make(map[string]*wire.Record),
		history: make(map[string][]wire.HistoryRecord),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke implements ledgertest.Contract.
func (c *Chaincode) Invoke(submit bool, transaction string, args []string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch transaction {
	case c.tx.Create:
		return c.write(submit, transaction, func() ([]byte, error) { return c.create(args) })
	case c.tx.Update:
		return c.write(submit, transaction, func() ([]byte, error) { return c.update(args) })
	case c.tx.Delete:
		return c.write(submit, transaction, func() ([]byte, error) { return c.remove(args) })
	case c.tx.Transfer:
		return c.write(submit, transaction, func() ([]byte, error) { return c.transfer(args) })
	case c.tx.Read:
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		rec, err := c.get(args[0])
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	case c.tx.ReadAll:
		return c.list(func(*wire.Record) bool { return true })
	case c.tx.ByOwner:
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return c.list(func(r *wire.Record) bool { return r.Owner == args[0] })
	case c.tx.Exists:
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		_, ok := c.state[args[0]]
		return []byte(strconv.FormatBool(ok)), nil
	case c.tx.Authenticity:
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return c.verify(args[0])
	case c.tx.History:
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		h := c.history[args[0]]
		if h == nil {
			h = []wire.HistoryRecord{}
		}
		return json.Marshal(h)
	}
	return nil, fmt.Errorf("function %s not found in contract", transaction)
}

// Tamper replaces the stored content hash of id, simulating a record that no
// longer matches its document.
func (c *Chaincode) Tamper(id, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.state[id]; ok {
		rec.Metadata.Hash = hash
	}
}

// Len is the number of live titles.
func (c *Chaincode) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state)
}

func (c *Chaincode) write(submit bool, transaction string, fn func() ([]byte, error)) ([]byte, error) {
	if !submit {
		return nil, fmt.Errorf("transaction %s modifies state and must be submitted", transaction)
	}
	return fn()
}

func (c *Chaincode) create(args []string) ([]byte, error) {
	if err := arity(args, 3); err != nil {
		return nil, err
	}
	id, path := args[0], args[1]
	if _, ok := c.state[id]; ok {
		return nil, fmt.Errorf("le titre foncier %s existe déjà", id)
	}
	var meta wire.Metadata
	if err := json.Unmarshal([]byte(args[2]), &meta); err != nil {
		return nil, fmt.Errorf("métadonnées invalides: %v", err)
	}
	now := wire.Timestamp{Time: c.now().UTC()}
	rec := &wire.Record{
		Hash:      id,
		Path:      path,
		Owner:     meta.Owner,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.state[id] = rec
	c.appendHistory(id, rec, false)
	return json.Marshal(rec)
}

func (c *Chaincode) update(args []string) ([]byte, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, fmt.Errorf("expected 2 or 3 arguments, got %d", len(args))
	}
	rec, err := c.get(args[0])
	if err != nil {
		return nil, err
	}
	var patch wire.Metadata
	if err := json.Unmarshal([]byte(args[1]), &patch); err != nil {
		return nil, fmt.Errorf("métadonnées invalides: %v", err)
	}
	merged := mergeMetadata(rec.Metadata, patch)
	merged.Owner = rec.Owner
	rec.Metadata = merged
	if len(args) == 3 && args[2] != "" {
		rec.Path = args[2]
	}
	rec.LastPrice = ""
	rec.UpdatedAt = wire.Timestamp{Time: c.now().UTC()}
	c.appendHistory(args[0], rec, false)
	return json.Marshal(rec)
}

func (c *Chaincode) transfer(args []string) ([]byte, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, fmt.Errorf("expected 2 or 3 arguments, got %d", len(args))
	}
	rec, err := c.get(args[0])
	if err != nil {
		return nil, err
	}
	if args[1] == "" {
		return nil, errors.New("le nouveau propriétaire est requis")
	}
	price := "0"
	if len(args) == 3 && args[2] != "" {
		price = args[2]
	}
	rec.Owner = args[1]
	rec.Metadata.Owner = args[1]
	rec.LastPrice = price
	rec.UpdatedAt = wire.Timestamp{Time: c.now().UTC()}
	c.appendHistory(args[0], rec, false)
	return json.Marshal(rec)
}

func (c *Chaincode) remove(args []string) ([]byte, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	if _, err := c.get(args[0]); err != nil {
		return nil, err
	}
	delete(c.state, args[0])
	c.appendHistory(args[0], nil, true)
	return json.Marshal(wire.DeleteReply{
		Message: fmt.Sprintf("Titre foncier %s supprimé", args[0]),
		Hash:    args[0],
	})
}

func (c *Chaincode) verify(id string) ([]byte, error) {
	verdict := wire.Authenticity{Hash: id, Timestamp: wire.Timestamp{Time: c.now().UTC()}}
	rec, err := c.get(id)
	if err != nil {
		verdict.Error = err.Error()
		return json.Marshal(verdict)
	}
	verdict.IsAuthentic = rec.Metadata.Hash == "" || rec.Metadata.Hash == id
	return json.Marshal(verdict)
}

func (c *Chaincode) list(keep func(*wire.Record) bool) ([]byte, error) {
	keys := make([]string, 0, len(c.state))
	for k := range c.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*wire.Record
	for _, k := range keys {
		if keep(c.state[k]) {
			out = append(out, c.state[k])
		}
	}
	// A nil slice marshals to null, as Go chaincode does for empty queries.
	return json.Marshal(out)
}

func (c *Chaincode) get(id string) (*wire.Record, error) {
	rec, ok := c.state[id]
	if !ok {
		return nil, fmt.Errorf("le titre foncier %s n'existe pas", id)
	}
	return rec, nil
}

func (c *Chaincode) appendHistory(id string, rec *wire.Record, isDelete bool) {
	c.seq++
	entry := wire.HistoryRecord{
		TxID:      fmt.Sprintf("tx%04d", c.seq),
		Timestamp: wire.Timestamp{Time: c.now().UTC()},
		IsDelete:  isDelete,
	}
	if rec != nil {
		snapshot := *rec
		entry.Value = &snapshot
	}
	c.history[id] = append(c.history[id], entry)
}

func mergeMetadata(base, patch wire.Metadata) wire.Metadata {
	if patch.Name != "" {
		base.Name = patch.Name
	}
	if patch.Type != "" {
		base.Type = patch.Type
	}
	if patch.Size != 0 {
		base.Size = patch.Size
	}
	if patch.Hash != "" {
		base.Hash = patch.Hash
	}
	if patch.Description != "" {
		base.Description = patch.Description
	}
	if patch.Address != "" {
		base.Address = patch.Address
	}
	return base
}

func arity(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}
