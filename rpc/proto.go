// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"fmt"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"
)

// encodeProgress serializes a ProgressResponse as a small protobuf
// message, for the websocket transport: one commit job can emit
// thousands of progress frames over its lifetime, and protobuf keeps
// that stream an order of magnitude smaller than the JSON encoding
// used by the request/response transports.
func encodeProgress(p ProgressResponse) ([]byte, error) {
	msg := &wrappers.BytesValue{Value: mustMarshalFields(p)}
	raw, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal progress frame: %w", err)
	}
	return raw, nil
}

// mustMarshalFields packs the four numeric progress fields as varints,
// followed by the raw state string; a dedicated .proto message isn't
// worth the build-time codegen step for so few fields, so this frame
// rides inside a single protobuf wrapper value instead.
func mustMarshalFields(p ProgressResponse) []byte {
	buf := make([]byte, 0, 40)
	buf = appendVarint(buf, uint64(p.Offset))
	buf = appendVarint(buf, uint64(p.Length))
	buf = appendVarint(buf, uint64(p.Speed))
	buf = appendVarint(buf, uint64(p.Status))
	buf = append(buf, []byte(p.State)...)
	return buf
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}
