/*
Package kvtable contains the write path of a log-structured merge
tree: an arena-backed concurrent skip list acting as the in-memory
write buffer, and a table writer producing immutable sorted-string
table files from ordered key/value pairs.

Data Structure Documentation

Table

A table contains a series of data blocks, an optional filter block,
a meta index block, an index block and a fixed-size footer. Every
block except the footer is followed by a 5-byte trailer.

	Table layout:
	+-----------------+-----+-----------------+----------------+------------------+---------------+--------+
	| block 1|trailer | ... | block n|trailer | filter|trailer | metaindex|trailer| index|trailer | footer |
	+-----------------+-----+-----------------+----------------+------------------+---------------+--------+

	Block trailer:
	+--------------------------+-----------------------+
	| compression type (1 byte)| masked crc (4 bytes)  |
	+--------------------------+-----------------------+

	Footer (48 bytes):
	+------------------+--------------+--------------+------------------+
	| metaindex handle | index handle | zero padding | magic (8 bytes)  |
	+------------------+--------------+--------------+------------------+

A block handle is the pair (offset, size) of a block within the file,
encoded as two varints; the trailer is not included in the size. The
index block maps short separator keys to data block handles, one entry
per data block, and the meta index maps "filter.<policy>" to the
filter block handle.

Block

A block is a series of prefix-compressed entries followed by a restart
array. Entries at restart points store their full key; all others drop
the prefix shared with their predecessor.

	Entry:
	+------------------------+--------------------------+-----------------------+-----------+-------+
	| shared bytes (varint)  | unshared bytes (varint)  | value length (varint) | key delta | value |
	+------------------------+--------------------------+-----------------------+-----------+-------+

	Block layout:
	+---------+-----+---------+--------------------+-----+--------------------+-------------------------+
	| entry 1 | ... | entry n | restart 1 (4 bytes)| ... | restart r (4 bytes)| num restarts (4 bytes)  |
	+---------+-----+---------+--------------------+-----+--------------------+-------------------------+

Filter block

A filter block concatenates one filter per 2KiB window of the file's
data region, followed by an offset array locating each filter.

	+----------+-----+----------+---------------------+-----+---------------------+------------------------+-------------------+
	| filter 1 | ... | filter n | offset 1 (4 bytes)  | ... | offset n (4 bytes)  | array offset (4 bytes) | base lg (1 byte)  |
	+----------+-----+----------+---------------------+-----+---------------------+------------------------+-------------------+
*/
package kvtable
