package symbols

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"fortio.org/safecast"
)

var le = binary.LittleEndian

// ReadFile reads and indexes one module. Unreadable paths yield
// *ModuleNotFoundError; incompatible data and context expiry yield *FormatError.
func ReadFile(ctx context.Context, path string) (*Index, error) {
	return bounded(ctx, path, func() (*Index, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ModuleNotFoundError{Path: path, Err: err}
		}
		return parseAt(path, data)
	})
}

// bounded runs fn until it finishes or ctx is done. A deadline becomes a
// timeout FormatError; fn keeps running in the background until its read returns.
func bounded[T any](ctx context.Context, path string, fn func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn()
		done <- outcome{val: val, err: err}
	}()
	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &FormatError{Path: path, Reason: "timed out reading symbols", Timeout: true, Err: ctx.Err()}
		}
		return zero, ctx.Err()
	}
}

func parseAt(path string, data []byte) (*Index, error) {
	idx, err := Parse(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	idx.Path = path
	return idx, nil
}

// Parse decodes a PSYM store held in memory.
func Parse(data []byte) (*Index, error) {
	c, err := openContainer(data)
	if err != nil {
		return nil, err
	}

	strs, ok, err := c.stream(streamStrings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, formatErr("string table stream is missing")
	}
	st, err := parseStrings(strs)
	if err != nil {
		return nil, err
	}

	typeData, ok, err := c.stream(streamTypes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, formatErr("type stream is missing")
	}

	idx := newIndex(0)
	idx.Digest = Sum(data)

	if info, ok, err := c.stream(streamInfo); err != nil {
		return nil, err
	} else if ok {
		if err := parseInfo(info, st, idx); err != nil {
			return nil, err
		}
	}

	if docData, ok, err := c.stream(streamDocuments); err != nil {
		return nil, err
	} else if ok {
		docs, err := parseDocuments(docData, st)
		if err != nil {
			return nil, err
		}
		idx.Documents = docs
	}

	var members []MemberSymbol
	if !idx.Partial {
		memberData, ok, err := c.stream(streamMembers)
		switch {
		case err != nil:
			degrade(idx, "member stream is damaged: "+err.Error())
		case !ok:
			degrade(idx, "member stream is absent")
		default:
			members, err = parseMembers(memberData, st)
			if err != nil {
				degrade(idx, "member stream is damaged: "+err.Error())
			}
		}
	}

	if err := parseTypes(typeData, st, idx, members); err != nil {
		return nil, err
	}
	idx.seal()
	return idx, nil
}

func degrade(idx *Index, reason string) {
	idx.Partial = true
	if idx.PartialReason == "" {
		idx.PartialReason = reason
	}
}

type container struct {
	data      []byte
	blockSize uint32
	blocks    uint32
	sizes     []uint32
	lists     [][]uint32
}

func openContainer(data []byte) (*container, error) {
	if len(data) < superblockSize {
		return nil, formatErr("file too small for a symbol store (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, formatErr("missing PSYM signature")
	}
	c := &container{
		data:      data,
		blockSize: le.Uint32(data[16:]),
		blocks:    le.Uint32(data[20:]),
	}
	dirBytes := le.Uint32(data[24:])
	dirMap := le.Uint32(data[28:])

	if !validBlockSize(c.blockSize) {
		return nil, formatErr("unsupported block size %d", c.blockSize)
	}
	total := uint64(c.blockSize) * uint64(c.blocks)
	if total > uint64(len(data)) {
		return nil, formatErr("truncated store: %d blocks of %d bytes, have %d bytes", c.blocks, c.blockSize, len(data))
	}
	if dirMap == 0 || dirMap >= c.blocks {
		return nil, formatErr("directory map block %d out of range", dirMap)
	}
	if uint64(dirBytes) > total {
		return nil, formatErr("directory of %d bytes exceeds the store", dirBytes)
	}
	dirBlocks := blocksFor(dirBytes, c.blockSize)
	if uint64(dirBlocks)*4 > uint64(c.blockSize) {
		return nil, formatErr("directory of %d bytes does not fit one map block", dirBytes)
	}

	mapBlock := c.block(dirMap)
	dir := make([]byte, 0, dirBlocks*c.blockSize)
	for i := range dirBlocks {
		b := le.Uint32(mapBlock[i*4:])
		if b == 0 || b >= c.blocks {
			return nil, formatErr("directory block %d out of range", b)
		}
		dir = append(dir, c.block(b)...)
	}
	if uint64(dirBytes) > uint64(len(dir)) {
		return nil, formatErr("directory of %d bytes spans more than its blocks", dirBytes)
	}
	dir = dir[:dirBytes]
	if err := c.parseDirectory(dir); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *container) block(n uint32) []byte {
	start := uint64(n) * uint64(c.blockSize)
	return c.data[start : start+uint64(c.blockSize)]
}

func (c *container) parseDirectory(dir []byte) error {
	r := reader{buf: dir}
	count, err := r.u32()
	if err != nil {
		return formatErr("directory: %v", err)
	}
	if uint64(count)*4 > uint64(len(dir)) {
		return formatErr("directory claims %d streams", count)
	}
	c.sizes = make([]uint32, count)
	for i := range c.sizes {
		if c.sizes[i], err = r.u32(); err != nil {
			return formatErr("directory sizes: %v", err)
		}
	}
	c.lists = make([][]uint32, count)
	for i, size := range c.sizes {
		if size == noStream {
			continue
		}
		if uint64(size) > uint64(len(c.data)) {
			return formatErr("stream %d declares %d bytes, store has %d", i, size, len(c.data))
		}
		n := blocksFor(size, c.blockSize)
		if uint64(n)*4 > uint64(len(r.buf)-r.off) {
			return formatErr("directory block list of stream %d: %v", i, errShort)
		}
		list := make([]uint32, n)
		for j := range list {
			b, err := r.u32()
			if err != nil {
				return formatErr("directory block list of stream %d: %v", i, err)
			}
			if b == 0 || b >= c.blocks {
				return formatErr("stream %d references block %d out of range", i, b)
			}
			list[j] = b
		}
		c.lists[i] = list
	}
	return nil
}

// stream assembles a stream; ok is false when the stream is absent.
func (c *container) stream(id int) ([]byte, bool, error) {
	if id >= len(c.sizes) || c.sizes[id] == noStream {
		return nil, false, nil
	}
	size := c.sizes[id]
	out := make([]byte, 0, len(c.lists[id])*int(c.blockSize))
	for _, b := range c.lists[id] {
		out = append(out, c.block(b)...)
	}
	if uint64(size) > uint64(len(out)) {
		return nil, false, formatErr("stream %d shorter than its declared size", id)
	}
	return out[:size], true, nil
}

type reader struct {
	buf []byte
	off int
}

var errShort = errors.New("unexpected end of stream")

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, errShort
	}
	v := le.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.off+2 > len(r.buf) {
		return 0, errShort
	}
	v := le.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errShort
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

// records checks that count fixed-size records fit after the count prefix.
func (r *reader) records(size int) (int, error) {
	count, err := r.u32()
	if err != nil {
		return 0, err
	}
	n, err := safecast.Conv[int](count)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(size) > uint64(len(r.buf)-r.off) {
		return 0, fmt.Errorf("%d records of %d bytes exceed the stream", n, size)
	}
	return n, nil
}

type stringTable []byte

func parseStrings(data []byte) (stringTable, error) {
	r := reader{buf: data}
	m, err := r.u32()
	if err != nil || m != stringsMagic {
		return nil, formatErr("bad string table signature")
	}
	v, err := r.u32()
	if err != nil || v != stringsVersion {
		return nil, formatErr("unsupported string table version %d", v)
	}
	n, err := r.u32()
	if err != nil {
		return nil, formatErr("string table: %v", err)
	}
	size, err := safecast.Conv[int](n)
	if err != nil {
		return nil, formatErr("string table: %v", err)
	}
	body, err := r.bytes(size)
	if err != nil {
		return nil, formatErr("string table: %v", err)
	}
	return stringTable(body), nil
}

func (st stringTable) at(off uint32) (string, error) {
	if uint64(off) >= uint64(len(st)) {
		if off == 0 {
			return "", nil
		}
		return "", formatErr("string offset %d out of range", off)
	}
	end := bytes.IndexByte(st[off:], 0)
	if end < 0 {
		return "", formatErr("unterminated string at offset %d", off)
	}
	return string(st[off : int(off)+end]), nil
}

func parseInfo(data []byte, st stringTable, idx *Index) error {
	if len(data) < infoSize {
		return formatErr("info stream too small")
	}
	version := le.Uint32(data[0:])
	if version != formatVersion {
		return formatErr("unsupported symbol version %d", version)
	}
	idx.Age = le.Uint32(data[4:])
	name, err := st.at(le.Uint32(data[24:]))
	if err != nil {
		return err
	}
	idx.Module = name
	if le.Uint32(data[28:])&flagStripped != 0 {
		degrade(idx, "module symbols are stripped")
	}
	return nil
}

func parseDocuments(data []byte, st stringTable) ([]Document, error) {
	r := reader{buf: data}
	n, err := r.records(documentRecordSize)
	if err != nil {
		return nil, formatErr("document stream: %v", err)
	}
	docs := make([]Document, n)
	for i := range docs {
		off, _ := r.u32()
		sum, _ := r.bytes(len(Digest{}))
		path, err := st.at(off)
		if err != nil {
			return nil, err
		}
		docs[i].Path = path
		copy(docs[i].Checksum[:], sum)
	}
	return docs, nil
}

func parseMembers(data []byte, st stringTable) ([]MemberSymbol, error) {
	r := reader{buf: data}
	n, err := r.records(memberRecordSize)
	if err != nil {
		return nil, err
	}
	members := make([]MemberSymbol, n)
	for i := range members {
		nameOff, _ := r.u32()
		typeOff, _ := r.u32()
		vis, _ := r.u16()
		flags, _ := r.u16()
		assocOff, _ := r.u32()
		_, _ = r.u32() // reserved

		m := &members[i]
		if m.Name, err = st.at(nameOff); err != nil {
			return nil, err
		}
		if m.Type, err = st.at(typeOff); err != nil {
			return nil, err
		}
		m.Visibility = Visibility(vis)
		m.Key = flags&memberKey != 0
		m.Required = flags&memberRequired != 0
		m.Computed = flags&memberComputed != 0
		m.Collection = flags&memberCollection != 0
		if flags&memberAssociation != 0 {
			if m.Association, err = st.at(assocOff); err != nil {
				return nil, err
			}
		}
	}
	return members, nil
}

type typeRecord struct {
	sym    *TypeSymbol
	first  uint32
	count  uint32
	base   uint32
	docIdx uint32
}

func parseTypes(data []byte, st stringTable, idx *Index, members []MemberSymbol) error {
	r := reader{buf: data}
	n, err := r.records(typeRecordSize)
	if err != nil {
		return formatErr("type stream: %v", err)
	}
	records := make([]typeRecord, n)
	for i := range records {
		kind, _ := r.u16()
		vis, _ := r.u16()
		nsOff, _ := r.u32()
		nameOff, _ := r.u32()
		doc, _ := r.u32()
		first, _ := r.u32()
		count, _ := r.u32()
		base, _ := r.u32()
		_, _ = r.u32() // reserved

		ns, err := st.at(nsOff)
		if err != nil {
			return err
		}
		name, err := st.at(nameOff)
		if err != nil {
			return err
		}
		if name == "" {
			return formatErr("type record %d has no name", i)
		}
		records[i] = typeRecord{
			sym: &TypeSymbol{
				Key:        TypeKey{Namespace: ns, Name: name},
				Kind:       SymbolKind(kind),
				Visibility: Visibility(vis),
			},
			first:  first,
			count:  count,
			base:   base,
			docIdx: doc,
		}
	}

	// member ranges are validated for every record before any is attached,
	// so a damaged range degrades the whole index rather than single types
	if !idx.Partial {
		for i, rec := range records {
			end := uint64(rec.first) + uint64(rec.count)
			if end > uint64(len(members)) {
				degrade(idx, fmt.Sprintf("type record %d member range out of bounds", i))
				break
			}
		}
	}

	for i := range records {
		rec := &records[i]
		if rec.base != noIndex {
			if uint64(rec.base) >= uint64(len(records)) {
				return formatErr("type record %d base index %d out of range", i, rec.base)
			}
			baseKey := records[rec.base].sym.Key
			rec.sym.Base = &baseKey
		}
		if rec.docIdx != noIndex {
			if uint64(rec.docIdx) >= uint64(len(idx.Documents)) {
				return formatErr("type record %d document index %d out of range", i, rec.docIdx)
			}
			rec.sym.Document = idx.Documents[rec.docIdx].Path
		}
		if !idx.Partial && rec.count > 0 {
			ms := make([]MemberSymbol, rec.count)
			copy(ms, members[rec.first:rec.first+rec.count])
			rec.sym.Members = ms
		}
		idx.add(rec.sym)
	}
	return nil
}
