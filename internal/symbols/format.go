package symbols

// Layout of the PSYM multi-stream container. All integers are little endian.
//
//	block 0      superblock: magic[16] blockSize blockCount dirBytes dirMapBlock
//	dirMapBlock  u32 list of the blocks holding the stream directory
//	directory    streamCount, streamSizes[streamCount], block lists per stream
//
// Streams are addressed by position; a size of noStream marks an absent stream.

var magic = [16]byte{'P', 'S', 'Y', 'M', ' ', 'M', 'S', 'F', ' ', '1', '.', '0', '0', '\r', '\n', 0x1a}

const (
	superblockSize = 32
	noStream       = 0xFFFFFFFF
	noIndex        = 0xFFFFFFFF

	formatVersion  = 1
	stringsMagic   = 0xEFFEEFFE
	stringsVersion = 1

	infoSize           = 32
	stringsHeaderSize  = 12
	documentRecordSize = 36
	typeRecordSize     = 32
	memberRecordSize   = 20

	// info flags
	flagStripped = 1 << 0

	// member flags
	memberKey         = 1 << 0
	memberRequired    = 1 << 1
	memberComputed    = 1 << 2
	memberAssociation = 1 << 3
	memberCollection  = 1 << 4

	defaultBlockSize = 1024
)

const (
	streamInfo = iota
	streamStrings
	streamDocuments
	streamTypes
	streamMembers
	streamCount
)

func validBlockSize(n uint32) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// blocksFor rounds up in 64 bits; sizes near 0xFFFFFFFF would wrap in uint32.
func blocksFor(size, blockSize uint32) uint32 {
	return uint32((uint64(size) + uint64(blockSize) - 1) / uint64(blockSize))
}
