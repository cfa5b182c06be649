package symbols

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleModule() *Module {
	priv := VisPrivate
	return &Module{
		Name: "Shop.Contracts",
		Age:  3,
		GUID: "00112233445566778899aabbccddeeff",
		Documents: []ModuleDoc{
			{Path: "Customer.cs", Checksum: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"},
		},
		Types: []ModuleType{
			{
				Namespace: "Shop",
				Name:      "Entity",
				Document:  "Entity.cs",
				Members: []ModuleMember{
					{Name: "Id", Type: "guid", Key: true, Required: true},
				},
			},
			{
				Namespace: "Shop",
				Name:      "Customer",
				Document:  "Customer.cs",
				Base:      "Shop.Entity",
				Members: []ModuleMember{
					{Name: "Name", Type: "string", Required: true},
					{Name: "Orders", Type: "Shop.Order", Collection: true, Association: "Shop.Order"},
				},
			},
			{Namespace: "Shop", Name: "Secret", Visibility: &priv},
			{Namespace: "Shop", Name: "Status", Kind: KindEnum},
		},
	}
}

func mustMarshal(t *testing.T, m *Module) []byte {
	t.Helper()
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func TestParseReadsTypesAndMembers(t *testing.T) {
	idx, err := Parse(mustMarshal(t, sampleModule()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if idx.Module != "Shop.Contracts" || idx.Age != 3 {
		t.Fatalf("unexpected info: module=%q age=%d", idx.Module, idx.Age)
	}
	if idx.Partial {
		t.Fatalf("index unexpectedly partial: %s", idx.PartialReason)
	}
	if idx.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", idx.Len())
	}

	cust, ok := idx.Lookup("Shop", "Customer")
	if !ok {
		t.Fatalf("Shop.Customer not found")
	}
	if cust.Base == nil || cust.Base.String() != "Shop.Entity" {
		t.Fatalf("Customer base = %v, want Shop.Entity", cust.Base)
	}
	if cust.Document != "Customer.cs" {
		t.Fatalf("Customer document = %q", cust.Document)
	}
	orders, ok := cust.Member("Orders")
	if !ok || !orders.Collection || orders.Association != "Shop.Order" {
		t.Fatalf("Orders member = %+v, %v", orders, ok)
	}
	if name, _ := cust.Member("Name"); !name.Required || name.Key {
		t.Fatalf("Name member flags = %+v", name)
	}

	secret, _ := idx.LookupQualified("Shop.Secret")
	if secret == nil || secret.Visibility.Visible() {
		t.Fatalf("Secret should be present and not visible: %+v", secret)
	}
	if status, _ := idx.Lookup("Shop", "Status"); status.Kind != KindEnum {
		t.Fatalf("Status kind = %v", status.Kind)
	}

	keys := idx.Keys()
	want := []string{"Shop.Customer", "Shop.Entity", "Shop.Secret", "Shop.Status"}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Fatalf("Keys()[%d] = %s, want %s", i, k, want[i])
		}
	}
}

func TestParseDocumentsKeepChecksums(t *testing.T) {
	idx, err := Parse(mustMarshal(t, sampleModule()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(idx.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(idx.Documents))
	}
	if idx.Documents[0].Path != "Customer.cs" || idx.Documents[0].Checksum.IsZero() {
		t.Fatalf("first document = %+v", idx.Documents[0])
	}
	if !idx.Documents[1].Checksum.IsZero() {
		t.Fatalf("referenced document should have no checksum")
	}
}

func TestParseMissingMembersIsPartial(t *testing.T) {
	m := sampleModule()
	m.Omit.Members = true
	idx, err := Parse(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !idx.Partial || idx.PartialReason == "" {
		t.Fatalf("expected partial index, got partial=%v reason=%q", idx.Partial, idx.PartialReason)
	}
	cust, ok := idx.Lookup("Shop", "Customer")
	if !ok {
		t.Fatalf("partial index must still list types")
	}
	if len(cust.Members) != 0 {
		t.Fatalf("partial index should carry no members, got %d", len(cust.Members))
	}
}

func TestParseStrippedIsPartial(t *testing.T) {
	m := sampleModule()
	m.Stripped = true
	idx, err := Parse(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !idx.Partial {
		t.Fatalf("stripped module should be partial")
	}
}

func TestParseWithoutOptionalStreams(t *testing.T) {
	m := sampleModule()
	m.Omit.Info = true
	m.Omit.Documents = true
	idx, err := Parse(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if idx.Module != "" || len(idx.Documents) != 0 {
		t.Fatalf("unexpected info/documents: %q %v", idx.Module, idx.Documents)
	}
	if cust, _ := idx.Lookup("Shop", "Customer"); cust.Document != "" {
		t.Fatalf("document should be cleared, got %q", cust.Document)
	}
	if idx.Partial {
		t.Fatalf("members present: index must be complete")
	}
}

func TestParseBlockSizes(t *testing.T) {
	for _, bs := range []uint32{512, 4096} {
		m := sampleModule()
		m.BlockSize = bs
		idx, err := Parse(mustMarshal(t, m))
		if err != nil {
			t.Fatalf("block size %d: %v", bs, err)
		}
		if idx.Len() != 4 {
			t.Fatalf("block size %d: Len() = %d", bs, idx.Len())
		}
	}
	m := sampleModule()
	m.BlockSize = 700
	if _, err := Marshal(m); err == nil {
		t.Fatalf("expected error for block size 700")
	}
}

func TestParseDuplicateTypesFirstWins(t *testing.T) {
	m := &Module{
		Name: "dup",
		Types: []ModuleType{
			{Namespace: "A", Name: "T", Members: []ModuleMember{{Name: "First", Type: "int32"}}},
			{Namespace: "A", Name: "T", Members: []ModuleMember{{Name: "Second", Type: "int32"}}},
		},
	}
	idx, err := Parse(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if idx.Len() != 1 || len(idx.Duplicates) != 1 {
		t.Fatalf("Len=%d duplicates=%v", idx.Len(), idx.Duplicates)
	}
	tt, _ := idx.Lookup("A", "T")
	if _, ok := tt.Member("First"); !ok {
		t.Fatalf("first record should win, got %+v", tt.Members)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := mustMarshal(t, sampleModule())
	data[0] = 'X'
	_, err := Parse(data)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	data := mustMarshal(t, sampleModule())
	_, err := Parse(data[:len(data)/2])
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if _, err := Parse([]byte("tiny")); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError for tiny input, got %v", err)
	}
}

func TestParseRejectsMissingTypeStream(t *testing.T) {
	var buf []byte
	streams := make([][]byte, streamCount)
	enc := newEncoder()
	sb := prefixCount(stringsMagic, nil)
	sb = append(sb, 1, 0, 0, 0)
	sb = append(sb, 1, 0, 0, 0)
	sb = append(sb, enc.strings.Bytes()...)
	streams[streamStrings] = sb

	w := &sliceWriter{buf: &buf}
	if err := writeContainer(w, 512, streams); err != nil {
		t.Fatalf("writeContainer: %v", err)
	}
	_, err := Parse(buf)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func TestReadFileNotFound(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.psym"))
	var nf *ModuleNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ModuleNotFoundError, got %v", err)
	}
}

func TestReadFileSetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.psym")
	if err := os.WriteFile(path, mustMarshal(t, sampleModule()), 0o600); err != nil {
		t.Fatal(err)
	}
	idx, err := ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if idx.Path != path || idx.Digest.IsZero() {
		t.Fatalf("path=%q digest=%s", idx.Path, idx.Digest)
	}

	bad := filepath.Join(t.TempDir(), "bad.psym")
	if err := os.WriteFile(bad, []byte("not a symbol store at all, just some text"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = ReadFile(context.Background(), bad)
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Path != bad {
		t.Fatalf("expected FormatError with path, got %v", err)
	}
}

func TestBoundedTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)
	_, err := bounded(ctx, "slow.psym", func() (*Index, error) {
		<-release
		return nil, nil
	})
	var fe *FormatError
	if !errors.As(err, &fe) || !fe.Timeout {
		t.Fatalf("expected timeout FormatError, got %v", err)
	}
}

func TestDescribeRoundTripsThroughEncode(t *testing.T) {
	idx, err := Parse(mustMarshal(t, sampleModule()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	again, err := Parse(mustMarshal(t, Describe(idx)))
	if err != nil {
		t.Fatalf("Parse(Describe): %v", err)
	}
	if again.Len() != idx.Len() || again.Module != idx.Module {
		t.Fatalf("described index differs: %d/%q vs %d/%q", again.Len(), again.Module, idx.Len(), idx.Module)
	}
	c, _ := again.Lookup("Shop", "Customer")
	if c.Base == nil || len(c.Members) != 2 {
		t.Fatalf("Customer lost detail: %+v", c)
	}
}

// rawStore lays out a superblock, a map block at 1 and dir as block 2.
func rawStore(blockSize, dirBytes uint32, dir []byte) []byte {
	data := make([]byte, 3*blockSize)
	copy(data, magic[:])
	le.PutUint32(data[16:], blockSize)
	le.PutUint32(data[20:], 3)
	le.PutUint32(data[24:], dirBytes)
	le.PutUint32(data[28:], 1)
	le.PutUint32(data[blockSize:], 2)
	copy(data[2*blockSize:], dir)
	return data
}

func TestParseRejectsOversizedDirectory(t *testing.T) {
	for _, dirBytes := range []uint32{0xFFFFFFFF, 0xFFFFFE01, 4096} {
		_, err := Parse(rawStore(512, dirBytes, nil))
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("dirBytes=%#x: expected FormatError, got %v", dirBytes, err)
		}
	}
}

func TestParseRejectsOversizedStream(t *testing.T) {
	dir := make([]byte, 8)
	le.PutUint32(dir[0:], 1)
	le.PutUint32(dir[4:], 0xFFFFFFFE)
	_, err := Parse(rawStore(512, uint32(len(dir)), dir))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}
