package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// Document is the gateway config document. All three sections must be
// mappings for a document to be accepted. Connector entries are
// opaque to the store; by convention each is a mapping with "type"
// and "config" keys.
type Document struct {
	ConnectorTypes   map[string]string      `json:"connectorTypes"`
	CloudConnectors  map[string]interface{} `json:"cloudConnectors"`
	DeviceConnectors map[string]interface{} `json:"deviceConnectors"`
}

// ParseDocument decodes and shape-checks a gateway config document.
// It fails with ErrConfigParse on bad JSON and with ErrConfigShape
// naming the offending section when one of the three mappings is
// missing or not a mapping.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrConfigParse, err)
	}

	doc := &Document{}
	sections := []struct {
		name string
		dst  interface{}
	}{
		{"connectorTypes", &doc.ConnectorTypes},
		{"cloudConnectors", &doc.CloudConnectors},
		{"deviceConnectors", &doc.DeviceConnectors},
	}
	for _, s := range sections {
		msg, ok := raw[s.name]
		if !ok {
			return nil, util.NewShapeError(s.name, "is missing")
		}
		if err := json.Unmarshal(msg, s.dst); err != nil {
			return nil, util.NewShapeError(s.name, "must be a mapping")
		}
	}
	// A JSON null passes the unmarshal above but is not a mapping.
	if doc.ConnectorTypes == nil {
		return nil, util.NewShapeError("connectorTypes", "must be a mapping")
	}
	if doc.CloudConnectors == nil {
		return nil, util.NewShapeError("cloudConnectors", "must be a mapping")
	}
	if doc.DeviceConnectors == nil {
		return nil, util.NewShapeError("deviceConnectors", "must be a mapping")
	}
	return doc, nil
}

// EntryType extracts the "type" field from an opaque connector entry.
func EntryType(entry interface{}) (string, bool) {
	m, ok := entry.(map[string]interface{})
	if !ok {
		return "", false
	}
	t, ok := m["type"].(string)
	return t, ok
}

// EntryConfig extracts the "config" field from an opaque connector
// entry.
func EntryConfig(entry interface{}) interface{} {
	m, ok := entry.(map[string]interface{})
	if !ok {
		return nil
	}
	return m["config"]
}

// Store holds the in-memory config document. All reads and writes go
// through deep copies so callers can never alias store state.
type Store struct {
	mu  sync.Mutex
	doc Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.doc = Document{
		ConnectorTypes:   map[string]string{},
		CloudConnectors:  map[string]interface{}{},
		DeviceConnectors: map[string]interface{}{},
	}
	return s
}

// Load replaces the whole document with a deep copy of doc.
func (s *Store) Load(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = Document{
		ConnectorTypes:   copyTypeMap(doc.ConnectorTypes),
		CloudConnectors:  deepCopyMap(doc.CloudConnectors),
		DeviceConnectors: deepCopyMap(doc.DeviceConnectors),
	}
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Document{
		ConnectorTypes:   copyTypeMap(s.doc.ConnectorTypes),
		CloudConnectors:  deepCopyMap(s.doc.CloudConnectors),
		DeviceConnectors: deepCopyMap(s.doc.DeviceConnectors),
	}
}

// Types returns a copy of the connector type table.
func (s *Store) Types() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTypeMap(s.doc.ConnectorTypes)
}

// SetType binds a connector type name to a module path or registry
// key.
func (s *Store) SetType(typeName, modulePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.ConnectorTypes[typeName] = modulePath
}

// Section returns a deep copy of the connector section for a
// category.
func (s *Store) Section(cat Category) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopyMap(s.section(cat))
}

// Entry returns a deep copy of one connector entry.
func (s *Store) Entry(cat Category, id string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.section(cat)[id]
	if !ok {
		return nil, false
	}
	return deepCopyValue(entry), true
}

// SetEntry replaces the whole entry for (cat, id) with a deep copy of
// entry.
func (s *Store) SetEntry(cat Category, id string, entry interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.section(cat)[id] = deepCopyValue(entry)
}

// DeleteEntry removes the entry for (cat, id). It reports whether an
// entry was present.
func (s *Store) DeleteEntry(cat Category, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	section := s.section(cat)
	_, ok := section[id]
	delete(section, id)
	return ok
}

// section returns the live section map for a category. Callers hold
// s.mu.
func (s *Store) section(cat Category) map[string]interface{} {
	if cat == CategoryCloud {
		return s.doc.CloudConnectors
	}
	return s.doc.DeviceConnectors
}

// Marshal serializes the document as the canonical on-disk form:
// UTF-8 JSON with 4-space indentation.
func (s *Store) Marshal() ([]byte, error) {
	snap := s.Snapshot()
	return json.MarshalIndent(snap, "", "    ")
}

func copyTypeMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		dst := make([]interface{}, len(val))
		for i, el := range val {
			dst[i] = deepCopyValue(el)
		}
		return dst
	default:
		return v
	}
}

// serialWriter persists the config document with at most one write in
// flight. Mutations arriving during a write coalesce into exactly one
// follow-up write that uses the latest snapshot. Write failures are
// logged; the follow-up is still attempted.
type serialWriter struct {
	snapshot func() ([]byte, error)
	write    func(data []byte) error
	log      logrus.FieldLogger

	mu       sync.Mutex
	inflight bool
	pending  bool
	wg       sync.WaitGroup
}

func newSerialWriter(path string, snapshot func() ([]byte, error), log logrus.FieldLogger) *serialWriter {
	return &serialWriter{
		snapshot: snapshot,
		write: func(data []byte) error {
			return os.WriteFile(path, data, 0644)
		},
		log: log,
	}
}

// Schedule requests a write. If one is in flight the request folds
// into the single pending follow-up.
func (w *serialWriter) Schedule() {
	w.mu.Lock()
	if w.inflight {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.inflight = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

func (w *serialWriter) run() {
	for {
		data, err := w.snapshot()
		if err == nil {
			err = w.write(data)
		}
		if err != nil {
			w.log.Errorf("%v: %v", util.ErrWriteFailed, err)
		}

		w.mu.Lock()
		if w.pending {
			w.pending = false
			w.mu.Unlock()
			continue
		}
		w.inflight = false
		w.mu.Unlock()
		return
	}
}

// Flush blocks until the writer is quiescent. Used on shutdown and in
// tests.
func (w *serialWriter) Flush() {
	w.wg.Wait()
}
