package symbols

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"fortio.org/safecast"
)

// Module is a plain description of a module's symbols, used to produce stores
// with Encode (fixtures, `proxygen symbols pack`).
type Module struct {
	Name      string         `json:"name" yaml:"name"`
	Age       uint32         `json:"age,omitempty" yaml:"age,omitempty"`
	GUID      string         `json:"guid,omitempty" yaml:"guid,omitempty"` // 32 hex digits
	Stripped  bool           `json:"stripped,omitempty" yaml:"stripped,omitempty"`
	BlockSize uint32         `json:"blockSize,omitempty" yaml:"blockSize,omitempty"`
	Documents []ModuleDoc    `json:"documents,omitempty" yaml:"documents,omitempty"`
	Types     []ModuleType   `json:"types" yaml:"types"`
	Omit      ModuleOmission `json:"omit,omitempty" yaml:"omit,omitempty"`
}

// ModuleOmission drops streams from the encoded store, the way optimized or
// stripped builds do.
type ModuleOmission struct {
	Members   bool `json:"members,omitempty" yaml:"members,omitempty"`
	Documents bool `json:"documents,omitempty" yaml:"documents,omitempty"`
	Info      bool `json:"info,omitempty" yaml:"info,omitempty"`
}

// ModuleDoc declares a source document with an optional hex sha256 checksum.
type ModuleDoc struct {
	Path     string `json:"path" yaml:"path"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// ModuleType describes one type record.
type ModuleType struct {
	Namespace  string         `json:"namespace" yaml:"namespace"`
	Name       string         `json:"name" yaml:"name"`
	Kind       SymbolKind     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Visibility *Visibility    `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Document   string         `json:"document,omitempty" yaml:"document,omitempty"`
	Base       string         `json:"base,omitempty" yaml:"base,omitempty"`
	Members    []ModuleMember `json:"members,omitempty" yaml:"members,omitempty"`
}

// ModuleMember describes one member record.
type ModuleMember struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"`
	Visibility  *Visibility `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Key         bool        `json:"key,omitempty" yaml:"key,omitempty"`
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Computed    bool        `json:"computed,omitempty" yaml:"computed,omitempty"`
	Collection  bool        `json:"collection,omitempty" yaml:"collection,omitempty"`
	Association string      `json:"association,omitempty" yaml:"association,omitempty"`
}

func visOrPublic(v *Visibility) Visibility {
	if v == nil {
		return VisPublic
	}
	return *v
}

// Marshal encodes m into a PSYM store.
func Marshal(m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes m as a PSYM store.
func Encode(w io.Writer, m *Module) error {
	if m == nil {
		return fmt.Errorf("nil module")
	}
	blockSize := m.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	if !validBlockSize(blockSize) {
		return fmt.Errorf("unsupported block size %d", blockSize)
	}

	enc := newEncoder()
	streams := make([][]byte, streamCount)

	// documents: declared first, then any referenced by types, in sorted order
	docIndex := make(map[string]uint32)
	var docs []ModuleDoc
	addDoc := func(d ModuleDoc) {
		if _, ok := docIndex[d.Path]; ok || d.Path == "" {
			return
		}
		docIndex[d.Path] = uint32(len(docs))
		docs = append(docs, d)
	}
	for _, d := range m.Documents {
		addDoc(d)
	}
	var referenced []string
	for _, t := range m.Types {
		if t.Document != "" {
			referenced = append(referenced, t.Document)
		}
	}
	sort.Strings(referenced)
	for _, p := range referenced {
		addDoc(ModuleDoc{Path: p})
	}

	typeIndex := make(map[string]uint32, len(m.Types))
	for i, t := range m.Types {
		id, err := safecast.Conv[uint32](i)
		if err != nil {
			return err
		}
		q := TypeKey{Namespace: t.Namespace, Name: t.Name}.String()
		if _, dup := typeIndex[q]; !dup {
			typeIndex[q] = id
		}
	}

	var members, types bytes.Buffer
	var memberCount uint32
	for _, t := range m.Types {
		if t.Name == "" {
			return fmt.Errorf("type in namespace %q has no name", t.Namespace)
		}
		base := uint32(noIndex)
		if t.Base != "" {
			b, ok := typeIndex[t.Base]
			if !ok {
				return fmt.Errorf("type %s.%s: base %q is not part of the module", t.Namespace, t.Name, t.Base)
			}
			base = b
		}
		doc := uint32(noIndex)
		if t.Document != "" {
			doc = docIndex[t.Document]
		}
		count, err := safecast.Conv[uint32](len(t.Members))
		if err != nil {
			return err
		}
		kind := t.Kind
		if kind == KindUnknown {
			kind = KindClass
		}
		putU16(&types, uint16(kind))
		putU16(&types, uint16(visOrPublic(t.Visibility)))
		putU32(&types, enc.str(t.Namespace))
		putU32(&types, enc.str(t.Name))
		putU32(&types, doc)
		putU32(&types, memberCount)
		putU32(&types, count)
		putU32(&types, base)
		putU32(&types, 0)

		for _, mem := range t.Members {
			var flags uint16
			if mem.Key {
				flags |= memberKey
			}
			if mem.Required {
				flags |= memberRequired
			}
			if mem.Computed {
				flags |= memberComputed
			}
			if mem.Collection {
				flags |= memberCollection
			}
			var assoc uint32
			if mem.Association != "" {
				flags |= memberAssociation
				assoc = enc.str(mem.Association)
			}
			putU32(&members, enc.str(mem.Name))
			putU32(&members, enc.str(mem.Type))
			putU16(&members, uint16(visOrPublic(mem.Visibility)))
			putU16(&members, flags)
			putU32(&members, assoc)
			putU32(&members, 0)
		}
		memberCount += count
	}

	typeCount, err := safecast.Conv[uint32](len(m.Types))
	if err != nil {
		return err
	}
	streams[streamTypes] = prefixCount(typeCount, types.Bytes())
	if !m.Omit.Members {
		streams[streamMembers] = prefixCount(memberCount, members.Bytes())
	}

	if !m.Omit.Documents {
		var db bytes.Buffer
		for _, d := range docs {
			putU32(&db, enc.str(d.Path))
			var sum Digest
			if d.Checksum != "" {
				raw, err := hex.DecodeString(d.Checksum)
				if err != nil || len(raw) != len(sum) {
					return fmt.Errorf("document %q: checksum must be %d hex bytes", d.Path, len(sum))
				}
				copy(sum[:], raw)
			}
			db.Write(sum[:])
		}
		n, err := safecast.Conv[uint32](len(docs))
		if err != nil {
			return err
		}
		streams[streamDocuments] = prefixCount(n, db.Bytes())
	} else {
		// types keep their document indices; drop them so the store stays consistent
		streams[streamTypes] = clearDocuments(streams[streamTypes])
	}

	if !m.Omit.Info {
		var info bytes.Buffer
		putU32(&info, formatVersion)
		putU32(&info, m.Age)
		var guid [16]byte
		if m.GUID != "" {
			raw, err := hex.DecodeString(m.GUID)
			if err != nil || len(raw) != len(guid) {
				return fmt.Errorf("guid must be %d hex bytes", len(guid))
			}
			copy(guid[:], raw)
		}
		info.Write(guid[:])
		putU32(&info, enc.str(m.Name))
		var flags uint32
		if m.Stripped {
			flags |= flagStripped
		}
		putU32(&info, flags)
		streams[streamInfo] = info.Bytes()
	}

	// the string table is finalized last: every other stream has interned its strings
	var sb bytes.Buffer
	putU32(&sb, stringsMagic)
	putU32(&sb, stringsVersion)
	tableLen, err := safecast.Conv[uint32](enc.strings.Len())
	if err != nil {
		return err
	}
	putU32(&sb, tableLen)
	sb.Write(enc.strings.Bytes())
	streams[streamStrings] = sb.Bytes()

	return writeContainer(w, blockSize, streams)
}

func clearDocuments(types []byte) []byte {
	out := make([]byte, len(types))
	copy(out, types)
	for off := 4; off+typeRecordSize <= len(out); off += typeRecordSize {
		le.PutUint32(out[off+12:], noIndex)
	}
	return out
}

func writeContainer(w io.Writer, blockSize uint32, streams [][]byte) error {
	next := uint32(1) // block 0 is the superblock
	var body bytes.Buffer
	sizes := make([]uint32, len(streams))
	lists := make([][]uint32, len(streams))
	for i, s := range streams {
		if s == nil {
			sizes[i] = noStream
			continue
		}
		size, err := safecast.Conv[uint32](len(s))
		if err != nil {
			return err
		}
		sizes[i] = size
		n := blocksFor(size, blockSize)
		for range n {
			lists[i] = append(lists[i], next)
			next++
		}
		body.Write(pad(s, n*blockSize))
	}

	var dir bytes.Buffer
	streamN, err := safecast.Conv[uint32](len(streams))
	if err != nil {
		return err
	}
	putU32(&dir, streamN)
	for _, s := range sizes {
		putU32(&dir, s)
	}
	for _, list := range lists {
		for _, b := range list {
			putU32(&dir, b)
		}
	}
	dirBytes, err := safecast.Conv[uint32](dir.Len())
	if err != nil {
		return err
	}
	dirBlocks := blocksFor(dirBytes, blockSize)
	if dirBlocks*4 > blockSize {
		return fmt.Errorf("stream directory too large for block size %d", blockSize)
	}
	var dirMap bytes.Buffer
	for range dirBlocks {
		putU32(&dirMap, next)
		next++
	}
	body.Write(pad(dir.Bytes(), dirBlocks*blockSize))
	mapBlock := next
	next++
	body.Write(pad(dirMap.Bytes(), blockSize))

	var super bytes.Buffer
	super.Write(magic[:])
	putU32(&super, blockSize)
	putU32(&super, next)
	putU32(&super, dirBytes)
	putU32(&super, mapBlock)

	if _, err := w.Write(pad(super.Bytes(), blockSize)); err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func pad(b []byte, size uint32) []byte {
	out := make([]byte, size)
	copy(out, b)
	return out
}

func prefixCount(n uint32, records []byte) []byte {
	out := make([]byte, 4, 4+len(records))
	le.PutUint32(out, n)
	return append(out, records...)
}

func putU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	le.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func putU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	le.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

type encoder struct {
	strings bytes.Buffer
	offsets map[string]uint32
}

func newEncoder() *encoder {
	e := &encoder{offsets: make(map[string]uint32)}
	e.strings.WriteByte(0) // offset 0 is the empty string
	e.offsets[""] = 0
	return e
}

func (e *encoder) str(s string) uint32 {
	if off, ok := e.offsets[s]; ok {
		return off
	}
	off := uint32(e.strings.Len())
	e.strings.WriteString(s)
	e.strings.WriteByte(0)
	e.offsets[s] = off
	return off
}
