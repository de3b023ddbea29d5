// Package archive implements the RBA container format: a fixed-size header,
// a fixed-size directory of entries, and a payload region holding each
// entry's bytes either raw or zlib-compressed.
//
// Layout (format version 2, all integers little-endian):
//
//	Header (160 bytes)
//	  id               [4]byte  "RBA\x00"
//	  formatVersion    uint8
//	  contentVersion   uint8    doubles as mount priority
//	  sourceFolderPath [100]byte NUL-padded
//	  archiveName      [50]byte  NUL-padded
//	  entryCount       uint32
//
//	Entry (269 bytes, repeated entryCount times)
//	  path             [256]byte NUL-padded canonical path
//	  compressed       uint8
//	  uncompressedSize uint32
//	  compressedSize   uint32
//	  offset           uint32   absolute from start of file
//
//	Payload
//	  entry bytes, each starting at its offset
//
// Directory entries are stored sorted by path in descending order so that
// lookups can binary search. Archives are read-only once written.
package archive
