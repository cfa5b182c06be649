package symbols

import (
	"errors"
	"testing"
)

// maxFuzzStore bounds inputs so a single case stays fast.
const maxFuzzStore = 64 << 10

func FuzzParse(f *testing.F) {
	seed, err := Marshal(sampleModule())
	if err != nil {
		f.Fatalf("Marshal: %v", err)
	}
	f.Add(seed)
	f.Add(seed[:len(seed)/2])
	f.Add(rawStore(512, 0xFFFFFFFF, nil))
	f.Add([]byte("PSYM"))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > maxFuzzStore {
			data = data[:maxFuzzStore]
		}
		idx, err := Parse(data)
		if err != nil {
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Parse returned %T, want *FormatError: %v", err, err)
			}
			return
		}
		if idx == nil {
			t.Fatalf("Parse returned neither index nor error")
		}
	})
}
