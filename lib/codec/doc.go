// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared encoding configuration for termsync.
//
// Every wire frame and every retained snapshot payload is CBOR,
// encoded with Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Equal values always produce equal bytes, which is what lets the
// snapshot round-trip tests compare encodings directly and lets the
// history store digest a snapshot once and verify it on every replay.
//
//	data, err := codec.Marshal(frame)
//	err = codec.Unmarshal(data, &frame)
//
// Large payloads (snapshot bodies, backfill chunks) are wrapped in a
// compressed block:
//
//	block, err := codec.Compress(data, codec.CompressionLZ4)
//	data, err = codec.Decompress(block, maxSize)
//
// A block is self-describing: one tag byte, the uncompressed length as
// a uvarint, then the payload. Data that does not shrink is stored
// with CompressionNone regardless of the requested tag.
//
// Struct tags: wire types use `cbor` tags with short keys. Types that
// also appear in configuration files use `yaml` tags and are never
// put on the wire.
package codec
