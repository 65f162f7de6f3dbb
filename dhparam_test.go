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
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectDHParam(t *testing.T) {
	table := make([]dhParam, 0, len(dhGroups))
	for _, g := range dhGroups {
		table = append(table, dhParam{minKeyBits: g.minKeyBits, bits: g.bits})
	}
	sort.Slice(table, func(i, j int) bool {
		return table[i].minKeyBits < table[j].minKeyBits
	})

	cases := map[int]int{
		0:     1024,
		512:   1024,
		1024:  1024,
		1025:  2048,
		2048:  2048,
		3072:  3072,
		4096:  4096,
		6144:  6144,
		8192:  8192,
		16384: 8192,
	}
	for keyBits, want := range cases {
		selected := selectDHParam(table, keyBits)
		require.NotNil(t, selected, "key bits %d", keyBits)
		require.Equal(t, want, selected.bits, "key bits %d", keyBits)
	}
	require.Nil(t, selectDHParam(nil, 2048))
}

func TestLibraryDHTable(t *testing.T) {
	library.mtx.RLock()
	defer library.mtx.RUnlock()
	require.Len(t, library.dhParams, len(dhGroups))
	for i, p := range library.dhParams {
		require.NotNil(t, p.dh)
		if i > 0 {
			require.Greater(t, p.minKeyBits, library.dhParams[i-1].minKeyBits)
		}
	}
}

func TestLoadDHParametersRejectsGarbage(t *testing.T) {
	_, err := LoadDHParametersFromPEM([]byte("not a pem block"))
	require.Error(t, err)
}
