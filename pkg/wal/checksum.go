package wal

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
