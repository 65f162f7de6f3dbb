// Copyright (C) 2017. See AUTHORS.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openssl

import (
	"github.com/pkg/errors"
)

const (
	ProtocolSSLv2Hello = "SSLv2Hello"
	ProtocolSSLv2      = "SSLv2"
	ProtocolSSLv3      = "SSLv3"
	ProtocolTLSv1      = "TLSv1"
	ProtocolTLSv1_1    = "TLSv1.1"
	ProtocolTLSv1_2    = "TLSv1.2"
	ProtocolTLSv1_3    = "TLSv1.3"
	ProtocolAll        = "all"
)

// ProtocolVersion is a wire protocol version number as OpenSSL uses it.
type ProtocolVersion int

const (
	VersionUnknown ProtocolVersion = 0
	VersionSSL3    ProtocolVersion = 0x0300
	VersionTLS1    ProtocolVersion = 0x0301
	VersionTLS1_1  ProtocolVersion = 0x0302
	VersionTLS1_2  ProtocolVersion = 0x0303
	VersionTLS1_3  ProtocolVersion = 0x0304
)

// protocolLadder is ordered from oldest to newest.
var protocolLadder = []struct {
	name    string
	version ProtocolVersion
}{
	{ProtocolSSLv3, VersionSSL3},
	{ProtocolTLSv1, VersionTLS1},
	{ProtocolTLSv1_1, VersionTLS1_1},
	{ProtocolTLSv1_2, VersionTLS1_2},
	{ProtocolTLSv1_3, VersionTLS1_3},
}

func (v ProtocolVersion) String() string {
	for _, p := range protocolLadder {
		if p.version == v {
			return p.name
		}
	}
	return "UNKNOWN"
}

// parseProtocols turns configured names into the set of ladder versions they
// enable.
func parseProtocols(names []string) (map[ProtocolVersion]bool, error) {
	enabled := make(map[ProtocolVersion]bool)
	for _, name := range names {
		switch name {
		case ProtocolSSLv2, ProtocolSSLv2Hello:
			// no longer supported by the library, accepted for compatibility
		case ProtocolAll:
			for _, p := range protocolLadder {
				if p.version >= VersionTLS1 {
					enabled[p.version] = true
				}
			}
		default:
			found := false
			for _, p := range protocolLadder {
				if p.name == name {
					enabled[p.version] = true
					found = true
					break
				}
			}
			if !found {
				return nil, errors.Errorf("openssl: unknown protocol %q", name)
			}
		}
	}
	return enabled, nil
}

// protocolBounds returns the oldest and newest enabled versions. Versions
// between them are allowed too since the library only takes a range.
func protocolBounds(enabled map[ProtocolVersion]bool) (
	min, max ProtocolVersion, err error) {
	for _, p := range protocolLadder {
		if !enabled[p.version] {
			continue
		}
		if min == VersionUnknown {
			min = p.version
		}
		max = p.version
	}
	if min == VersionUnknown {
		return VersionUnknown, VersionUnknown,
			errors.New("openssl: no usable protocol enabled")
	}
	return min, max, nil
}

// protocolsInRange lists the ladder names from min to max inclusive.
func protocolsInRange(min, max ProtocolVersion) []string {
	var names []string
	for _, p := range protocolLadder {
		if (min == VersionUnknown || p.version >= min) &&
			(max == VersionUnknown || p.version <= max) {
			names = append(names, p.name)
		}
	}
	return names
}
